package reviewer

import (
	"fmt"
	"strings"
)

// Validate checks that a request carries a prompt or a file and that any file
// part, empty or not, is declared as a PDF
func Validate(req ReviewRequest) error {
	if req.Prompt == "" && !req.HasFile() {
		return &ValidationError{Issues: []Issue{{
			Code:    "custom",
			Message: MsgMissingInput,
			Path:    []string{},
		}}}
	}

	if req.File != nil && req.File.ContentType != PDFContentType {
		return &UnsupportedFileTypeError{ContentType: req.File.ContentType}
	}

	return nil
}

// Validate checks the generated document against the output constraints.
// A document failing validation is treated as a generation failure.
func (d *ReviewerDocument) Validate() error {
	if d == nil {
		return fmt.Errorf("document is empty")
	}

	var problems []string

	required := []struct {
		name  string
		value string
	}{
		{"title", d.Title},
		{"description", d.Description},
		{"field", d.Field},
		{"detailedReviewer", d.DetailedReviewer},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			problems = append(problems, fmt.Sprintf("%s is empty", r.name))
		}
	}

	if n := len(d.Terminologies); n < MinTerminologies || n > MaxTerminologies {
		problems = append(problems, fmt.Sprintf("terminologies has %d entries, want %d-%d", n, MinTerminologies, MaxTerminologies))
	}
	for i, t := range d.Terminologies {
		if strings.TrimSpace(t.Term) == "" {
			problems = append(problems, fmt.Sprintf("terminologies[%d].term is empty", i))
		}
	}

	if n := len(d.EssentialFacts); n < MinEssentialFacts || n > MaxEssentialFacts {
		problems = append(problems, fmt.Sprintf("essentialFacts has %d entries, want %d-%d", n, MinEssentialFacts, MaxEssentialFacts))
	}

	if len(problems) > 0 {
		return fmt.Errorf("document does not match schema: %s", strings.Join(problems, "; "))
	}
	return nil
}
