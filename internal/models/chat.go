package models

// ChatMessage is one message in an OpenAI-compatible chat completion
// request: role is "user", "assistant", or "system".
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the incoming chat request from the reading widget.
type ChatRequest struct {
	Query        string `json:"query"`
	SessionID    string `json:"session_id,omitempty"`
	SelectedText string `json:"selected_text,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// ChatSource describes one cited source in a chat response.
type ChatSource struct {
	ContentID       string  `json:"content_id"`
	Title           string  `json:"title,omitempty"`
	SourcePath      string  `json:"source_path,omitempty"`
	Section         string  `json:"section,omitempty"`
	SimilarityScore float32 `json:"similarity_score"`
}

// ChatResponse is the answer returned to the widget.
type ChatResponse struct {
	ResponseID string       `json:"response_id"`
	Answer     string       `json:"answer"`
	Sources    []ChatSource `json:"sources"`
	SessionID  string       `json:"session_id"`
	Confidence float32      `json:"confidence"`
}

// IngestRequest is a single content-ingestion request from the publishing
// pipeline.
type IngestRequest struct {
	ContentID  string                 `json:"content_id,omitempty"`
	Content    string                 `json:"content"`
	Title      string                 `json:"title"`
	SourcePath string                 `json:"source_path"`
	Section    string                 `json:"section,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// IngestResponse reports the outcome of a single ingestion.
type IngestResponse struct {
	ContentID     string `json:"content_id"`
	ChunksCreated int    `json:"chunks_created"`
	Status        string `json:"status"`
}

// BatchIngestRequest is a best-effort batch of ingestion items; one item
// failing does not abort the rest.
type BatchIngestRequest struct {
	Contents []IngestRequest `json:"contents"`
}

// BatchIngestItemResult is the per-item outcome within a batch.
type BatchIngestItemResult struct {
	ContentID     string `json:"content_id,omitempty"`
	SourcePath    string `json:"source_path,omitempty"`
	ChunksCreated int    `json:"chunks_created,omitempty"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
}

// BatchIngestResponse summarizes a batch ingestion.
type BatchIngestResponse struct {
	ProcessedCount int                     `json:"processed_count"`
	FailedCount    int                     `json:"failed_count"`
	Results        []BatchIngestItemResult `json:"results"`
}

// SessionHistoryResponse is the payload for the session-history endpoint.
type SessionHistoryResponse struct {
	SessionID string     `json:"session_id"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
	IsActive  bool       `json:"is_active"`
	Messages  []*Message `json:"messages"`
}

// Ingestion outcome statuses.
const (
	IngestStatusIndexed = "indexed"
	IngestStatusFailed  = "failed"
)
