// Package cli runs reviewer generation from the command line and renders the
// result for a terminal, bypassing the HTTP server entirely.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
	"github.com/last-minute-learner/reviewer-api/internal/tools/generatereviewer"
	"github.com/sirupsen/logrus"
)

// OutputFormat controls how documents are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates an --output flag value
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected text or json)", s)
	}
}

// Runner executes one-shot generations.
type Runner struct {
	tool   *generatereviewer.Tool
	logger *logrus.Logger
	output OutputFormat
	out    io.Writer
}

// NewRunner creates a Runner writing rendered documents to out.
func NewRunner(tool *generatereviewer.Tool, logger *logrus.Logger, output OutputFormat, out io.Writer) *Runner {
	return &Runner{tool: tool, logger: logger, output: output, out: out}
}

// Generate runs the pipeline once and prints the document. Relative file
// paths are resolved against the working directory.
func (r *Runner) Generate(ctx context.Context, request generatereviewer.Request) error {
	if request.FilePath != "" {
		abs, err := filepath.Abs(request.FilePath)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", request.FilePath, err)
		}
		request.FilePath = abs
	}

	r.logger.WithFields(logrus.Fields{
		"file_path": request.FilePath,
		"pages":     request.Pages,
	}).Debug("Generating reviewer from CLI")

	doc, err := r.tool.Run(ctx, request, reviewer.TransportCLI)
	if err != nil {
		return err
	}

	if r.output == OutputJSON {
		return writeJSON(r.out, doc)
	}
	return RenderText(r.out, doc)
}

// RenderText writes a human readable reviewer. Colour follows fatih/color's
// terminal detection.
func RenderText(w io.Writer, doc *reviewer.ReviewerDocument) error {
	heading := color.New(color.FgCyan, color.Bold)
	label := color.New(color.Bold)
	term := color.New(color.FgYellow)

	_, _ = heading.Fprintln(w, doc.Title)
	fmt.Fprintln(w, doc.Description)
	_, _ = label.Fprint(w, "Field: ")
	fmt.Fprintln(w, doc.Field)

	fmt.Fprintln(w)
	_, _ = heading.Fprintln(w, "Reviewer")
	fmt.Fprintln(w, strings.TrimRight(doc.DetailedReviewer, "\n"))

	fmt.Fprintln(w)
	_, _ = heading.Fprintln(w, "Terminologies")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, t := range doc.Terminologies {
		fmt.Fprintf(tw, "  %s\t%s\n", term.Sprint(t.Term), firstLine(t.Definition))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	_, _ = heading.Fprintln(w, "Essential facts")
	for i, fact := range doc.EssentialFacts {
		fmt.Fprintf(w, "  %2d. %s\n", i+1, fact)
	}

	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func firstLine(s string) string {
	if before, _, found := strings.Cut(s, "\n"); found {
		return before
	}
	return s
}
