package model

import (
	"time"

	"github.com/google/uuid"
)

// SearchCandidate is a chunk returned by a similarity query together with the
// owning document fields needed for display. Never persisted.
type SearchCandidate struct {
	ChunkID     int64      `json:"chunk_id"`
	ChunkIndex  int        `json:"chunk_index"`
	Text        string     `json:"text"`
	DocumentID  int64      `json:"document_id"`
	DocumentRID uuid.UUID  `json:"document_rid"`
	Title       string     `json:"title"`
	Admin       string     `json:"admin"`
	URL         string     `json:"url"`
	PublishDate *time.Time `json:"publish_date,omitempty"`
	// Distance is the cosine distance to the query, 0 = identical.
	Distance float64 `json:"distance"`
	// Rank is the 1-based position in the sorted result set across all pages.
	Rank int `json:"rank"`
}

// Score returns the cosine similarity (1 - distance). It is monotonic in the
// distance so equal inputs always rank equally.
func (c *SearchCandidate) Score() float64 {
	return 1 - c.Distance
}

// SearchPage is one page of a similarity query with totals computed over the
// same filtered and sorted candidate set.
type SearchPage struct {
	Candidates   []SearchCandidate
	Page         int
	PageSize     int
	TotalResults int
	TotalPages   int
}

// TotalPagesFor returns ceil(total / pageSize), 0 for an empty set.
func TotalPagesFor(total int, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// SimilarityQuery is one page request against the candidate pool. Admins empty
// means no filter. PoolSize bounds how many nearest chunks are sorted and paged.
type SimilarityQuery struct {
	Embedding []float32
	Admins    []string
	Sort      Sort
	Page      int
	PageSize  int
	PoolSize  int
}

// Offset returns the row offset of the first candidate on the page.
func (q SimilarityQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}
