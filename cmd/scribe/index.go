package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/scribe/internal/ai"
	"github.com/xxxsen/scribe/internal/vectorindex"
)

const documentTaskType = "RETRIEVAL_DOCUMENT"

// pageRecord is one line of a pages.jsonl file produced by text extraction.
type pageRecord struct {
	Page *int   `json:"page"`
	Text string `json:"text"`
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "build and inspect collection indexes",
	}
	cmd.AddCommand(newIndexBuildCmd(), newIndexInspectCmd())
	return cmd
}

func newIndexBuildCmd() *cobra.Command {
	var collection, document, input string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "chunk, embed and store the pages of one document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := vectorindex.ValidateCollectionID(collection); err != nil {
				return err
			}
			if input == "" {
				return fmt.Errorf("--input is required")
			}
			if document == "" {
				document = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg, documentTaskType)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(input)
			if err != nil {
				return err
			}
			defer f.Close()
			pages, err := readPages(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}
			chunker := ai.NewChunker(cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens)
			idx, err := buildDocumentIndex(ctx, a.manager, chunker, document, pages)
			if err != nil {
				return err
			}
			if err := a.store.EnsureCollection(ctx, collection, idx.Dimension()); err != nil {
				return fmt.Errorf("ensure collection: %w", err)
			}
			if err := a.store.Put(ctx, collection, document, idx); err != nil {
				return fmt.Errorf("store document index: %w", err)
			}
			logutil.GetLogger(ctx).Info("document indexed",
				zap.String("collection_id", collection),
				zap.String("document_id", document),
				zap.Int("pages", len(pages)),
				zap.Int("chunks", idx.Len()),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection id")
	cmd.Flags().StringVar(&document, "document", "", "source document name, defaults to the input file name")
	cmd.Flags().StringVar(&input, "input", "", "pages.jsonl with one {page, text} record per line")
	return cmd
}

func newIndexInspectCmd() *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "print a summary of a stored collection index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg, "")
			if err != nil {
				return err
			}
			defer a.Close()
			idx, err := a.store.Load(ctx, collection)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summarize(collection, idx))
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection id")
	return cmd
}

func readPages(r io.Reader) ([]pageRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	var pages []pageRecord
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec pageRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if strings.TrimSpace(rec.Text) == "" {
			continue
		}
		pages = append(pages, rec)
	}
	return pages, scanner.Err()
}

func buildDocumentIndex(ctx context.Context, embedder ai.IEmbedder, chunker *ai.Chunker, document string, pages []pageRecord) (*vectorindex.Index, error) {
	idx := vectorindex.New(0)
	for i, p := range pages {
		for _, c := range chunker.Chunk(ctx, document, p.Page, p.Text) {
			if p.Page == nil {
				// unpaged records would otherwise share chunk ids
				c.ID = fmt.Sprintf("%s@%d", c.ID, i)
			}
			vec, err := embedder.Embed(ctx, c.Text)
			if err != nil {
				return nil, fmt.Errorf("embed chunk %s: %w", c.ID, err)
			}
			c.Vector = vec
			if err := idx.Add(c); err != nil {
				return nil, err
			}
		}
	}
	return idx, nil
}

type indexSummary struct {
	Collection string         `json:"collection"`
	Dimension  int            `json:"dimension"`
	Chunks     int            `json:"chunks"`
	Sources    map[string]int `json:"sources"`
	Pages      []int          `json:"pages,omitempty"`
}

func summarize(collection string, idx *vectorindex.Index) indexSummary {
	out := indexSummary{
		Collection: collection,
		Dimension:  idx.Dimension(),
		Chunks:     idx.Len(),
		Sources:    make(map[string]int),
	}
	seen := make(map[int]struct{})
	for _, c := range idx.Chunks() {
		out.Sources[c.Source]++
		if c.Page != nil {
			if _, ok := seen[*c.Page]; !ok {
				seen[*c.Page] = struct{}{}
				out.Pages = append(out.Pages, *c.Page)
			}
		}
	}
	sort.Ints(out.Pages)
	return out
}
