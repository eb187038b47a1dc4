package reviewer

import (
	"context"
	"errors"
	"time"

	"github.com/last-minute-learner/reviewer-api/internal/telemetry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// TextExtractor converts an in-memory PDF into plain text
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, pages string) (string, error)
}

// Generator requests a structured reviewer document for composed content
type Generator interface {
	Generate(ctx context.Context, content string) (*ReviewerDocument, error)
	Name() string
}

// Service runs the validate, extract, compose, generate sequence for one request
type Service struct {
	extractor TextExtractor
	generator Generator
	logger    *logrus.Logger
}

// NewService creates a reviewer service from its collaborators
func NewService(extractor TextExtractor, generator Generator, logger *logrus.Logger) *Service {
	return &Service{
		extractor: extractor,
		generator: generator,
		logger:    logger,
	}
}

// Generate produces a reviewer document for the request. Returned errors are
// one of *ValidationError, *UnsupportedFileTypeError, *ExtractionError or
// *GenerationError.
func (s *Service) Generate(ctx context.Context, req ReviewRequest) (doc *ReviewerDocument, err error) {
	start := time.Now()
	transport := req.Transport
	if transport == "" {
		transport = TransportHTTP
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanNameGenerate,
		attribute.String(telemetry.AttrTransport, transport),
		attribute.Bool(telemetry.AttrHasPrompt, req.Prompt != ""),
		attribute.Bool(telemetry.AttrHasFile, req.HasFile()),
	)
	defer func() {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String(telemetry.AttrOutcome, outcome))
		telemetry.EndSpan(span, err)
		telemetry.RecordGeneration(ctx, transport, outcome, float64(time.Since(start).Milliseconds()))
	}()

	if err := Validate(req); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"provider":  s.generator.Name(),
		"transport": transport,
	})

	var pdfText string
	if req.HasFile() {
		pdfText, err = s.extract(ctx, req)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"filename":    req.File.Filename,
			"bytes":       len(req.File.Data),
			"text_length": len(pdfText),
		}).Debug("Extracted PDF text")
	}

	content := Compose(req.Prompt, pdfText)
	span.SetAttributes(attribute.Int(telemetry.AttrContentChars, len(content)))

	genStart := time.Now()
	doc, err = s.generator.Generate(ctx, content)
	if err != nil {
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			err = &GenerationError{Provider: s.generator.Name(), Err: err}
		}
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, &GenerationError{Provider: s.generator.Name(), Err: err}
	}

	log.WithFields(logrus.Fields{
		"title":          doc.Title,
		"field":          doc.Field,
		"content_length": len(content),
		"duration_ms":    time.Since(genStart).Milliseconds(),
	}).Info("Reviewer generated")

	return doc, nil
}

func (s *Service) extract(ctx context.Context, req ReviewRequest) (text string, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanNameExtract,
		attribute.Int(telemetry.AttrFileSize, len(req.File.Data)),
		attribute.String(telemetry.AttrPDFPages, req.Pages),
	)
	defer func() {
		span.SetAttributes(attribute.Int(telemetry.AttrPDFTextChars, len(text)))
		telemetry.EndSpan(span, err)
	}()

	text, err = s.extractor.ExtractText(ctx, req.File.Data, req.Pages)
	if err != nil {
		var extractErr *ExtractionError
		if !errors.As(err, &extractErr) {
			err = &ExtractionError{Err: err}
		}
		return "", err
	}
	return text, nil
}
