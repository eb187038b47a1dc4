package reviewer

// PDFContentType is the only upload content type accepted by the generator
const PDFContentType = "application/pdf"

// Entry points
const (
	TransportHTTP = "http"
	TransportCLI  = "cli"
	TransportMCP  = "mcp"
)

// Document bounds for the generated reviewer
const (
	MinTerminologies  = 10
	MaxTerminologies  = 30
	MinEssentialFacts = 5
	MaxEssentialFacts = 20
)

// Upload is a memory-buffered file received alongside a review request
type Upload struct {
	// Filename is the client supplied file name, used for logging only
	Filename string

	// ContentType is the declared MIME type of the upload part
	ContentType string

	// Data holds the full file content
	Data []byte
}

// ReviewRequest is the input to reviewer generation. At least one of Prompt or
// File must be non-empty.
type ReviewRequest struct {
	Prompt string
	File   *Upload

	// Pages optionally restricts PDF extraction (e.g. "1-5", "1,3", "all").
	// Only the CLI and MCP entry points set it.
	Pages string

	// Transport names the entry point (http, cli, mcp) for logs and metrics
	Transport string
}

// HasFile reports whether the request carries a non-empty upload
func (r ReviewRequest) HasFile() bool {
	return r.File != nil && len(r.File.Data) > 0
}

// Terminology is a single term and its definition
type Terminology struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// ReviewerDocument is the generated study reviewer returned to the caller
type ReviewerDocument struct {
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Field            string        `json:"field"`
	DetailedReviewer string        `json:"detailedReviewer"`
	Terminologies    []Terminology `json:"terminologies"`
	EssentialFacts   []string      `json:"essentialFacts"`
}
