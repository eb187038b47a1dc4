package telemetry

// Attribute names used on reviewer spans and metrics

const (
	// Reviewer pipeline attributes
	AttrRequestID     = "reviewer.request.id"     // Request correlation ID
	AttrTransport     = "reviewer.transport"      // Entry point (http/cli/mcp)
	AttrHasPrompt     = "reviewer.has_prompt"     // Prompt supplied (boolean)
	AttrHasFile       = "reviewer.has_file"       // PDF supplied (boolean)
	AttrFileSize      = "reviewer.file.size"      // Upload size in bytes
	AttrContentChars  = "reviewer.content.chars"  // Composed content length
	AttrOutcome       = "reviewer.outcome"        // success/validation/unsupported_type/extraction/generation
	AttrPDFPages      = "pdf.pages"               // Page selection
	AttrPDFTextChars  = "pdf.text.chars"          // Extracted text length
	AttrErrorCategory = "reviewer.error.category" // Error category for failed stages

	// LLM attributes
	AttrLLMSystem       = "llm.system"              // Provider (openai, ollama)
	AttrLLMModel        = "llm.model"               // Model identifier
	AttrLLMBaseURL      = "llm.base_url"            // Sanitised endpoint
	AttrLLMInputTokens  = "llm.usage.input_tokens"  // Input tokens consumed
	AttrLLMOutputTokens = "llm.usage.output_tokens" // Output tokens generated
	AttrLLMTotalTokens  = "llm.usage.total_tokens"  // Total tokens
	AttrLLMTemperature  = "llm.temperature"         // Temperature setting
	AttrLLMMaxTokens    = "llm.max_tokens"          // Max tokens limit
	AttrLLMFinishReason = "llm.finish_reason"       // Completion reason (stop, length)
	AttrLLMTruncated    = "llm.content.truncated"   // Content cut to the character budget
)

// Span names
const (
	SpanNameGenerate   = "reviewer.generate" // Whole pipeline
	SpanNameExtract    = "pdf.extract"       // PDF text extraction
	SpanNameLLMExecute = "llm.execute"       // LLM invocation
)
