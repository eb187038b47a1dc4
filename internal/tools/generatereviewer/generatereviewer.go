// Package generatereviewer exposes reviewer generation as an MCP tool.
package generatereviewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

// ToolName is the registered MCP tool name
const ToolName = "generate_reviewer"

// Request is the parsed tool input
type Request struct {
	// Prompt is the topic or instructions for the reviewer
	Prompt string `json:"prompt,omitempty"`

	// FilePath points at a PDF whose text is included
	FilePath string `json:"file_path,omitempty"`

	// Pages selects PDF pages (e.g. "1-5", "1,3,5", "all")
	Pages string `json:"pages,omitempty"`
}

// Tool generates study reviewers from a prompt and/or a local PDF
type Tool struct {
	service     *reviewer.Service
	maxFileSize int64
}

// New creates the tool. Files larger than maxFileSize bytes are rejected.
func New(service *reviewer.Service, maxFileSize int64) *Tool {
	return &Tool{service: service, maxFileSize: maxFileSize}
}

// Definition returns the tool's definition for MCP registration
func (t *Tool) Definition() mcp.Tool {
	return mcp.NewTool(
		ToolName,
		mcp.WithDescription(`Generate a structured study reviewer (title, description, field, detailed notes, 10-30 terminologies and 5-20 essential facts) from a prompt and/or the text of a PDF. At least one of prompt or file_path is required.`),
		mcp.WithString("prompt",
			mcp.Description("Topic or instructions for the reviewer"),
		),
		mcp.WithString("file_path",
			mcp.Description("Absolute file path to a PDF document to include"),
		),
		mcp.WithString("pages",
			mcp.Description("Page range to read from the PDF (e.g., '1-5', '1,3,5', or 'all' for all pages, default: all)"),
			mcp.DefaultString("all"),
		),
	)
}

// Execute generates a reviewer and returns it as JSON text. Input problems
// are reported as tool errors; extraction and generation failures are
// returned as errors.
func (t *Tool) Execute(ctx context.Context, logger *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	logger.Debug("Executing generate reviewer tool")

	request, err := ParseRequest(args)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"prompt_chars": len(request.Prompt),
		"file_path":    request.FilePath,
		"pages":        request.Pages,
	}).Debug("Generate reviewer parameters")

	doc, err := t.Run(ctx, request, reviewer.TransportMCP)
	if err != nil {
		var (
			validationErr *reviewer.ValidationError
			typeErr       *reviewer.UnsupportedFileTypeError
		)
		switch {
		case errors.As(err, &validationErr):
			return mcp.NewToolResultError(reviewer.MsgMissingInput), nil
		case errors.As(err, &typeErr):
			return mcp.NewToolResultError(reviewer.MsgOnlyPDFAllowed), nil
		}
		return nil, err
	}

	return newToolResultJSON(doc)
}

// ParseRequest parses and validates the tool arguments
func ParseRequest(args map[string]any) (Request, error) {
	var request Request

	if prompt, ok := args["prompt"].(string); ok {
		request.Prompt = prompt
	}

	if filePath, ok := args["file_path"].(string); ok && filePath != "" {
		if !filepath.IsAbs(filePath) {
			return request, fmt.Errorf("file_path must be an absolute path")
		}
		request.FilePath = filePath
	}

	if pages, ok := args["pages"].(string); ok {
		request.Pages = pages
	}

	return request, nil
}

// Run generates a reviewer for request on behalf of the named transport
func (t *Tool) Run(ctx context.Context, request Request, transport string) (*reviewer.ReviewerDocument, error) {
	req := reviewer.ReviewRequest{
		Prompt:    request.Prompt,
		Pages:     request.Pages,
		Transport: transport,
	}

	if request.FilePath != "" {
		upload, err := LoadUpload(request.FilePath, t.maxFileSize)
		if err != nil {
			return nil, err
		}
		req.File = upload
	}

	return t.service.Generate(ctx, req)
}

// LoadUpload reads a local file into an upload. The content type comes from
// the file extension, falling back to content sniffing.
func LoadUpload(path string, maxSize int64) (*reviewer.Upload, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("file size %d bytes exceeds maximum allowed size %d bytes", info.Size(), maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}

	return &reviewer.Upload{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// newToolResultJSON creates a new tool result with JSON content
func newToolResultJSON(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}
