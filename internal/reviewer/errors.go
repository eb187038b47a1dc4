package reviewer

import (
	"errors"
	"fmt"
	"strings"
)

// Messages returned verbatim to HTTP callers
const (
	MsgMissingInput    = "Either prompt or file must be provided"
	MsgOnlyPDFAllowed  = "Only PDF files are allowed"
	MsgSomethingWrong  = "Something went wrong"
	MsgFileTooLarge    = "File too large"
	MsgTooManyRequests = "Too many requests"
)

// Issue describes one reason a request failed validation
type Issue struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Path    []string `json:"path"`
}

// ValidationError is returned when a request is missing required input
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// UnsupportedFileTypeError is returned when an upload is not a PDF
type UnsupportedFileTypeError struct {
	ContentType string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type %q: %s", e.ContentType, MsgOnlyPDFAllowed)
}

// ExtractionError wraps a failure to read text from an uploaded PDF
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("pdf extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// GenerationError wraps any failure of the structured completion request,
// including output that does not satisfy the document constraints
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("reviewer generation failed (%s): %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("reviewer generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Outcome classifies a Service.Generate result for logs and metrics
func Outcome(err error) string {
	var (
		validationErr *ValidationError
		typeErr       *UnsupportedFileTypeError
		extractErr    *ExtractionError
		genErr        *GenerationError
	)

	switch {
	case err == nil:
		return "success"
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &typeErr):
		return "unsupported_type"
	case errors.As(err, &extractErr):
		return "extraction"
	case errors.As(err, &genErr):
		return "generation"
	default:
		return "internal"
	}
}
