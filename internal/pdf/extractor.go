// Package pdf extracts plain text from in-memory PDF uploads.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// DefaultMaxPages is used when NewExtractor is given a non-positive limit
const DefaultMaxPages = 500

// ErrTooManyPages is returned when a document exceeds the page limit
var ErrTooManyPages = errors.New("pdf exceeds maximum page count")

func init() {
	// Keep pdfcpu from creating a config directory under the user's home
	model.ConfigPath = "disable"
}

// Extractor reads PDF text with ledongthuc/pdf and falls back to pdfcpu
// content stream extraction for documents the primary reader cannot decode
type Extractor struct {
	logger   *logrus.Logger
	maxPages int
}

// NewExtractor creates an extractor limited to maxPages pages per document
func NewExtractor(logger *logrus.Logger, maxPages int) *Extractor {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Extractor{logger: logger, maxPages: maxPages}
}

// ExtractText returns the plain text of the selected pages. An empty selection
// means every page. A readable PDF without text yields an empty string.
func (e *Extractor) ExtractText(ctx context.Context, data []byte, pages string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty pdf")
	}

	conf := newConfiguration()

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		e.logger.WithError(err).Warn("PDF failed relaxed validation, attempting extraction anyway")
	}

	pageCount, err := e.pageCount(data, conf)
	if err != nil {
		return "", err
	}

	e.logger.WithFields(logrus.Fields{
		"page_count": pageCount,
		"size_bytes": len(data),
	}).Debug("PDF page count")

	if pageCount > e.maxPages {
		return "", fmt.Errorf("%w: %d pages (max %d)", ErrTooManyPages, pageCount, e.maxPages)
	}

	selected, err := ParsePageSelection(pages, pageCount)
	if err != nil {
		return "", fmt.Errorf("invalid page selection: %w", err)
	}

	text, err := e.extractPlainText(ctx, data, selected)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		e.logger.WithError(err).Debug("Primary PDF text extraction failed")
	}

	if strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text), nil
	}

	e.logger.Debug("No text from primary extractor, falling back to content streams")

	text, err = e.extractContentStreams(ctx, data, selected, conf)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

// pageCount asks pdfcpu first and ledongthuc/pdf second
func (e *Extractor) pageCount(data []byte, conf *model.Configuration) (int, error) {
	count, err := api.PageCount(bytes.NewReader(data), conf)
	if err == nil && count > 0 {
		return count, nil
	}

	reader, openErr := openReader(data)
	if openErr != nil {
		if err != nil {
			return 0, fmt.Errorf("failed to read pdf: %w", errors.Join(err, openErr))
		}
		return 0, fmt.Errorf("failed to read pdf: %w", openErr)
	}

	count = reader.NumPage()
	if count <= 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return count, nil
}

// extractPlainText reads the selected pages with ledongthuc/pdf
func (e *Extractor) extractPlainText(ctx context.Context, data []byte, selected []int) (text string, err error) {
	// The reader panics on some malformed object graphs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := openReader(data)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	total := reader.NumPage()

	for _, pageNum := range selected {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if pageNum > total {
			break
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.WithError(err).WithField("page", pageNum).Debug("Failed to read page text")
			continue
		}

		if strings.TrimSpace(pageText) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(pageText)
	}

	return b.String(), nil
}

// extractContentStreams dumps raw page content with pdfcpu and recovers the
// text-show operands from it
func (e *Extractor) extractContentStreams(ctx context.Context, data []byte, selected []int, conf *model.Configuration) (string, error) {
	tempDir, err := os.MkdirTemp("", "reviewer_pdf_*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			e.logger.WithError(err).Warn("Failed to clean up temp directory")
		}
	}()

	selection := make([]string, len(selected))
	for i, pageNum := range selected {
		selection[i] = strconv.Itoa(pageNum)
	}

	if err := api.ExtractContent(bytes.NewReader(data), tempDir, "upload", selection, conf); err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	var b strings.Builder
	for _, pageNum := range selected {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		matches, err := filepath.Glob(filepath.Join(tempDir, fmt.Sprintf("*_page_%d.txt", pageNum)))
		if err != nil || len(matches) == 0 {
			continue
		}

		raw, err := os.ReadFile(matches[0])
		if err != nil {
			e.logger.WithError(err).WithField("page", pageNum).Warn("Failed to read extracted content file")
			continue
		}

		pageText := textFromContentStream(string(raw))
		if pageText == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(pageText)
	}

	return b.String(), nil
}

func openReader(data []byte) (reader *ledongthuc.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()
	return ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
