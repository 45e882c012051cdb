package models

import "time"

// MemoryEntry is one processed exchange in the per-user conversation
// history. Append-only; read back as a bounded recency window.
type MemoryEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	ChatID      int64     `json:"chat_id"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	Message     string    `json:"message"`
	AIResponse  string    `json:"ai_response"` // serialized Intent
	Intent      string    `json:"intent"`
	ContextHash string    `json:"context_hash"`
	ThreadID    string    `json:"thread_id"`
	MessageType string    `json:"message_type"` // "text" or "voice"
	TokensUsed  int       `json:"tokens_used"`
	Model       string    `json:"model"`
	Sentiment   string    `json:"sentiment"`
	Confidence  float64   `json:"confidence"`
}

// MemoryBundle is the recency window handed to the intent extractor, plus a
// digest over the most recent messages so an identical-context retry can be
// detected as pointless.
type MemoryBundle struct {
	Messages    []MemoryEntry `json:"messages"`
	Summary     string        `json:"summary"`
	ContextHash string        `json:"context_hash"`
}
