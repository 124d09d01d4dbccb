package api

import "time"

type CreateChatSessionRequest struct {
	Title   string  `json:"title,omitempty"`
	BookIDs []int64 `json:"book_ids,omitempty"`
}

type ChatSession struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	BookIDs   []int64   `json:"book_ids"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SourceChunk struct {
	ChunkID    int64   `json:"chunk_id"`
	BookTitle  *string `json:"book_title"`
	PageNumber *int    `json:"page_number"`
	Snippet    string  `json:"snippet"`
}

type ChatMessage struct {
	ID           int64         `json:"id"`
	SessionID    int64         `json:"session_id"`
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	SourceChunks []SourceChunk `json:"source_chunks"`
	ModelUsed    *string       `json:"model_used"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ProcessingStatus summarizes the processing jobs of the library
type ProcessingStatus struct {
	StatusCounts   map[string]int      `json:"status_counts"`
	RecentFailures []ProcessingFailure `json:"recent_failures"`
}

type ProcessingFailure struct {
	ID     int64   `json:"id"`
	BookID int64   `json:"book_id"`
	Stage  string  `json:"stage"`
	Error  *string `json:"error"`
}
