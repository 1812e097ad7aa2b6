package model

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is an ordered token window of a document, the unit of embedding and retrieval.
// A nil Embedding marks the chunk as pending for the embedding generator.
type Chunk struct {
	ID          int64     `json:"id"`
	DocumentID  int64     `json:"document_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	ChunkIndex  int       `json:"chunk_index"`
	Text        string    `json:"text"`
	TokenCount  int       `json:"token_count"`
	CreatedAt   time.Time `json:"created_at"`
	// Embedding
	Embedding           []float32  `json:"embedding,omitempty"`
	EmbeddingModel      *string    `json:"embedding_model,omitempty"`
	EmbeddingDimensions *int       `json:"embedding_dimensions,omitempty"`
	EmbeddingUpdatedAt  *time.Time `json:"embedding_updated_at,omitempty"`
}

// HasEmbedding reports whether the chunk carries a live embedding.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// Window is one chunker output window over a document's token stream.
// TokenStart and TokenEnd are offsets into the full stream, end exclusive.
type Window struct {
	Index      int
	Text       string
	Tokens     []int
	TokenStart int
	TokenEnd   int
}

// TokenCount returns the number of tokens in the window.
func (w Window) TokenCount() int {
	return w.TokenEnd - w.TokenStart
}

// ChunkEmbedding is a vector computed for a chunk, written as part of one batch.
type ChunkEmbedding struct {
	ChunkID    int64
	Vector     []float32
	Model      string
	Dimensions int
}
