package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/xxxsen/scribe/internal/model"
)

const (
	defaultChunkTokens   = 400
	defaultOverlapTokens = 80
)

// Chunker splits the markdown text of one page into retrievable chunks.
// Level 1 and 2 headings start a new chunk and prefix the chunks below them.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

func NewChunker(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = defaultChunkTokens
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		overlapTokens = defaultOverlapTokens
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

// Chunk returns the chunks of one page. Chunk ids are derived from the source,
// page and position so rebuilding an unchanged page yields the same ids.
func (c *Chunker) Chunk(ctx context.Context, source string, page *int, markdown string) []model.Chunk {
	logger := logutil.GetLogger(ctx).With(zap.String("source", source))
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var chunks []model.Chunk
	var current []string
	var currentTokens int
	var currentHeading string
	var fresh bool
	position := 0

	flush := func() {
		if len(current) == 0 || !fresh {
			return
		}
		fresh = false
		content := strings.Join(current, "\n\n")
		if currentHeading != "" {
			content = currentHeading + "\n" + content
		}
		chunks = append(chunks, model.Chunk{
			ID:     chunkID(source, page, position),
			Text:   content,
			Source: source,
			Page:   page,
			Offset: position,
		})
		if len(current) > 1 {
			overlap := 0
			var kept []string
			for i := len(current) - 1; i >= 0; i-- {
				t := estimateTokens(current[i])
				if overlap+t > c.overlapTokens {
					break
				}
				overlap += t
				kept = append([]string{current[i]}, kept...)
			}
			current = kept
			currentTokens = overlap
		} else {
			current = nil
			currentTokens = 0
		}
		position++
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			heading := extractText(n, reader.Source())
			if n.Level <= 2 {
				flush()
				current = nil
				currentTokens = 0
				currentHeading = heading
				continue
			}
			current = append(current, heading)
			currentTokens += estimateTokens(heading)
			fresh = true
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			var sb strings.Builder
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				sb.Write(line.Value(reader.Source()))
			}
			block := strings.TrimSpace(sb.String())
			if block == "" {
				continue
			}
			tokens := estimateTokens(block)
			if currentTokens+tokens > c.maxTokens {
				flush()
			}
			current = append(current, block)
			currentTokens += tokens
			fresh = true
		default:
			txt := extractText(n, reader.Source())
			if txt == "" {
				continue
			}
			tokens := estimateTokens(txt)
			if currentTokens > 0 && currentTokens+tokens > c.maxTokens {
				flush()
			}
			current = append(current, txt)
			currentTokens += tokens
			fresh = true
		}
	}
	flush()
	logger.Debug("page chunked", zap.Int("chunks", len(chunks)))
	return chunks
}

func chunkID(source string, page *int, position int) string {
	if page == nil {
		return fmt.Sprintf("%s#-#%04d", source, position)
	}
	return fmt.Sprintf("%s#%05d#%04d", source, *page, position)
}

func estimateTokens(text string) int {
	// words for latin text, one token per rune above ASCII
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := node.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
