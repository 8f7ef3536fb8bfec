package models

import "time"

// MemoryEntry is a single namespaced, upserted memory record. Keys are
// hierarchical, colon-separated (e.g. "u:telegram:42:pref").
type MemoryEntry struct {
	Key       string         `json:"key"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// MemoryResult is a scored recall hit.
type MemoryResult struct {
	Entry          MemoryEntry `json:"entry"`
	Score          float64     `json:"score"`
	KeywordScore   float64     `json:"keyword_score,omitempty"`
	VectorScore    float64     `json:"vector_score,omitempty"`
}

// RecallOptions narrows a recall() call.
type RecallOptions struct {
	Limit     int
	MinScore  float64
	KeyPrefix string
	Filter    map[string]any
}
