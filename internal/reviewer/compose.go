package reviewer

import "strings"

// contentSeparator separates the prompt from the extracted PDF text
const contentSeparator = "\n\n"

// Compose joins the non-empty parts in order, prompt first, separated by a
// blank line
func Compose(prompt, pdfText string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{prompt, pdfText} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, contentSeparator)
}
