// Package prompt renders retrieved passages and a question into the text
// sent to the generation model.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/scribe/internal/model"
)

type Style string

const (
	StyleDirect         Style = "direct"
	StyleConversational Style = "conversational"
)

const (
	persona = "You are 'Arcane Scribe', a helpful TTRPG assistant.\n"

	groundedInstructions = "Based *only* on the following context from the System Reference Document (SRD), provide a concise and direct answer to the question.\n" +
		"If the question asks for advice, optimization (e.g., \"min-max\"), or creative ideas, you may synthesize suggestions *grounded in the provided SRD context*.\n" +
		"Do not introduce rules, abilities, or concepts not present in or directly supported by the context.\n" +
		"Cite the passages you rely on by their [n] markers.\n" +
		"If the context does not provide enough information for a comprehensive answer, state that clearly.\n"

	emptyInstructions = "No passages from the selected rulebook matched this question.\n" +
		"State that no relevant information was found in the selected rulebook.\n" +
		"Do not answer from memory and do not make up rules, page numbers, or sources.\n"

	conversationalHint = "The question is formatted as 'User: ... Bot:'. Reply as the Bot, directly addressing the user's intent.\n"
	directHint         = "Treat the question as a direct question and respond accordingly.\n"
)

// Assemble renders query and chunks into a prompt of at most maxChars
// characters. Chunks are taken in order; one that does not fit is skipped
// whole. The instructions and question are always present, so a budget
// too small for any chunk gives the same prompt as no chunks at all.
// maxChars <= 0 disables the budget.
func Assemble(query string, chunks []model.RetrievedChunk, style Style, maxChars int) string {
	text, _ := assemble(query, chunks, style, maxChars)
	return text
}

// Included reports how many chunks Assemble keeps under
// maxChars.
func Included(query string, chunks []model.RetrievedChunk, style Style, maxChars int) int {
	_, n := assemble(query, chunks, style, maxChars)
	return n
}

func assemble(query string, chunks []model.RetrievedChunk, style Style, maxChars int) (string, int) {
	question := strings.TrimSpace(query)
	hint := directHint
	if style == StyleConversational {
		question = "User: " + question + "\nBot:"
		hint = conversationalHint
	}
	budget := maxChars - utf8.RuneCountInString(render(hint, question, nil, true))
	blocks := make([]string, 0, len(chunks))
	used := 0
	for _, c := range chunks {
		block := formatChunk(len(blocks)+1, c)
		size := utf8.RuneCountInString(block) + 1
		if maxChars > 0 && used+size > budget {
			continue
		}
		blocks = append(blocks, block)
		used += size
	}
	return render(hint, question, blocks, len(blocks) > 0), len(blocks)
}

func render(hint, question string, blocks []string, grounded bool) string {
	var sb strings.Builder
	sb.WriteString(persona)
	if grounded {
		sb.WriteString(groundedInstructions)
		sb.WriteString(hint)
		sb.WriteString("\nContext:\n")
		for _, b := range blocks {
			sb.WriteString(b)
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString(emptyInstructions)
		sb.WriteString(hint)
		sb.WriteString("\nContext:\n(none)\n")
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nHelpful Answer:")
	return sb.String()
}

func formatChunk(n int, c model.RetrievedChunk) string {
	header := fmt.Sprintf("[%d] (%s", n, c.Source)
	if c.Page != nil {
		header += fmt.Sprintf(", page %d", *c.Page)
	}
	return header + ")\n" + strings.TrimSpace(c.Text) + "\n"
}
