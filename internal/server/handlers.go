package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"unicode/utf8"

	"github.com/last-minute-learner/reviewer-api/internal/errorlog"
	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
)

const (
	// formOverheadBytes is allowed on top of the upload limit for the prompt
	// field and multipart framing
	formOverheadBytes = 1 << 20

	customMessage    = "Hello from Express API"
	msgMalformedBody = "Malformed request body"
)

var errUploadTooLarge = errors.New("upload exceeds maximum size")

type errorResponse struct {
	Error any `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleCustom(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: customMessage})
}

func (s *Server) handleGenerateReviewer(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+formOverheadBytes)

	req, err := s.readReviewRequest(r)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) || errors.Is(err, errUploadTooLarge) {
			logger.WithError(err).Warn("Upload rejected")
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: reviewer.MsgFileTooLarge})
			return
		}
		logger.WithError(err).Warn("Could not read request body")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgMalformedBody})
		return
	}

	doc, err := s.service.Generate(r.Context(), req)
	if err != nil {
		s.writeGenerateError(w, r, req, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// readReviewRequest reads the prompt field and the optional "file" part.
// Non-multipart bodies are parsed as url-encoded forms and never carry a file.
func (s *Server) readReviewRequest(r *http.Request) (reviewer.ReviewRequest, error) {
	req := reviewer.ReviewRequest{Transport: reviewer.TransportHTTP}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("failed to parse form: %w", err)
		}
		req.Prompt = r.PostFormValue("prompt")
		return req, nil
	}

	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		return req, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	req.Prompt = r.PostFormValue("prompt")

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		return req, nil
	}

	upload, err := readUpload(files[0], s.cfg.MaxUploadBytes)
	if err != nil {
		return req, err
	}
	req.File = upload

	return req, nil
}

func readUpload(fh *multipart.FileHeader, limit int64) (*reviewer.Upload, error) {
	if fh.Size > limit {
		return nil, fmt.Errorf("%w: %d bytes", errUploadTooLarge, fh.Size)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	return &reviewer.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) writeGenerateError(w http.ResponseWriter, r *http.Request, req reviewer.ReviewRequest, err error) {
	logger := s.requestLogger(r)

	var (
		validationErr *reviewer.ValidationError
		typeErr       *reviewer.UnsupportedFileTypeError
	)

	switch {
	case errors.As(err, &validationErr):
		logger.WithError(err).Debug("Request failed validation")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationErr.Issues})
	case errors.As(err, &typeErr):
		logger.WithField("content_type", typeErr.ContentType).Debug("Rejected non-PDF upload")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: reviewer.MsgOnlyPDFAllowed})
	default:
		stage := reviewer.Outcome(err)
		logger.WithError(err).WithField("stage", stage).Error("Reviewer generation failed")

		entry := errorlog.Entry{
			RequestID:   requestIDFromContext(r.Context()),
			Transport:   reviewer.TransportHTTP,
			Stage:       stage,
			Error:       err.Error(),
			PromptChars: utf8.RuneCountInString(req.Prompt),
		}
		if req.File != nil {
			entry.Filename = req.File.Filename
			entry.FileBytes = len(req.File.Data)
		}
		s.errorLog.Record(entry)

		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: reviewer.MsgSomethingWrong})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
