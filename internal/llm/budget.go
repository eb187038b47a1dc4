package llm

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

const maxBudgetChunkSize = 2000

// FitContent trims content to at most maxChars runes, cutting at the end of
// the last whole chunk that fits. It reports whether anything was removed.
func FitContent(content string, maxChars int) (string, bool) {
	if maxChars <= 0 || utf8.RuneCountInString(content) <= maxChars {
		return content, false
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(min(maxChars, maxBudgetChunkSize)),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)

	chunks, err := splitter.SplitText(content)
	if err != nil || len(chunks) == 0 {
		return hardCut(content, maxChars), true
	}

	// Chunks are trimmed substrings in document order
	offset, cut, runes := 0, 0, 0
	for _, chunk := range chunks {
		idx := strings.Index(content[offset:], chunk)
		if idx < 0 {
			break
		}
		end := offset + idx + len(chunk)
		runes += utf8.RuneCountInString(content[offset:end])
		if runes > maxChars {
			break
		}
		cut, offset = end, end
	}

	if cut == 0 {
		return hardCut(content, maxChars), true
	}
	return content[:cut], true
}

// hardCut returns the first maxChars runes of s
func hardCut(s string, maxChars int) string {
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
