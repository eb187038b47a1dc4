package testutils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"

	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
	"github.com/sirupsen/logrus"
)

// CreateTestLogger creates a logger suitable for testing
func CreateTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

// CreateTestContext creates a context suitable for testing
func CreateTestContext() context.Context {
	return context.Background()
}

// ValidDocument returns a document that satisfies every output constraint
func ValidDocument() *reviewer.ReviewerDocument {
	doc := &reviewer.ReviewerDocument{
		Title:            "Photosynthesis",
		Description:      "How plants convert light into chemical energy",
		Field:            "Biology",
		DetailedReviewer: "# Photosynthesis\n\n- Light reactions\n- Calvin cycle",
	}
	for i := range reviewer.MinTerminologies {
		doc.Terminologies = append(doc.Terminologies, reviewer.Terminology{
			Term:       fmt.Sprintf("Term %d", i+1),
			Definition: fmt.Sprintf("Definition %d", i+1),
		})
	}
	for i := range reviewer.MinEssentialFacts {
		doc.EssentialFacts = append(doc.EssentialFacts, fmt.Sprintf("Fact %d", i+1))
	}
	return doc
}

// StubExtractor is a reviewer.TextExtractor returning canned output
type StubExtractor struct {
	Text string
	Err  error

	mu    sync.Mutex
	calls int
}

func (s *StubExtractor) ExtractText(_ context.Context, _ []byte, _ string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.Text, s.Err
}

// Calls returns the number of extraction calls made
func (s *StubExtractor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// StubGenerator is a reviewer.Generator that records the content it receives
type StubGenerator struct {
	Doc *reviewer.ReviewerDocument
	Err error

	mu       sync.Mutex
	contents []string
}

func (s *StubGenerator) Name() string { return "stub" }

func (s *StubGenerator) Generate(_ context.Context, content string) (*reviewer.ReviewerDocument, error) {
	s.mu.Lock()
	s.contents = append(s.contents, content)
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Doc, nil
}

// Contents returns every content string passed to Generate
func (s *StubGenerator) Contents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.contents...)
}

// MultipartFile describes a file part for NewMultipartBody
type MultipartFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NewMultipartBody builds a multipart form body with an optional prompt field
// and an optional "file" part. It returns the body and its Content-Type.
func NewMultipartBody(prompt *string, file *MultipartFile) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	if prompt != nil {
		if err := w.WriteField("prompt", *prompt); err != nil {
			return nil, "", err
		}
	}

	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, file.Filename))
		if file.ContentType != "" {
			h.Set("Content-Type", file.ContentType)
		}
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

// BuildPDF returns a minimal single-font PDF with one page per entry in pages.
// Each page draws its text with a single Tj operator.
func BuildPDF(pages ...string) []byte {
	if len(pages) == 0 {
		pages = []string{""}
	}

	// Object layout: 1 catalog, 2 pages, 3 font, then page/content pairs
	var objects []string
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+i*2)
	}

	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)

	for i, text := range pages {
		contentNum := 5 + i*2
		stream := fmt.Sprintf("BT\n/F1 12 Tf\n72 712 Td\n(%s) Tj\nET\n", escapePDFString(text))
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentNum),
			fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefOffset)

	return buf.Bytes()
}

func escapePDFString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}
