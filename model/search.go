package model

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects plain similarity search or similarity search re-ranked by the judge.
type Mode string

const (
	ModeSimple   Mode = "simple"
	ModeAdvanced Mode = "advanced"
)

// Valid reports whether m is a supported mode.
func (m Mode) Valid() bool {
	return m == ModeSimple || m == ModeAdvanced
}

// Sort is the result ordering of a search.
type Sort string

const (
	SortRelevance Sort = "relevance"
	SortDateDesc  Sort = "date_desc"
	SortDateAsc   Sort = "date_asc"
)

// Valid reports whether s is a supported sort order.
func (s Sort) Valid() bool {
	return s == SortRelevance || s == SortDateDesc || s == SortDateAsc
}

// SearchRequest is the input of one search, as received over HTTP or built by the CLI.
type SearchRequest struct {
	Query           string   `json:"query"`
	Mode            Mode     `json:"mode,omitempty"`
	AdminFilter     []string `json:"admin_filter,omitempty"`
	Sort            Sort     `json:"sort,omitempty"`
	Page            int      `json:"page,omitempty"`
	PageSize        int      `json:"page_size,omitempty"`
	IncludeRejected bool     `json:"include_rejected,omitempty"`
}

// WithSort returns a copy of the request with a new sort order. The page is
// reset to 1 since the previous page number means nothing in the new order.
func (r SearchRequest) WithSort(sort Sort) SearchRequest {
	next := r
	next.AdminFilter = append([]string(nil), r.AdminFilter...)
	next.Sort = sort
	next.Page = 1
	return next
}

// SearchFilters echoes the effective filters of a search.
type SearchFilters struct {
	Admin           []string `json:"admin"`
	Sort            Sort     `json:"sort"`
	IncludeRejected bool     `json:"include_rejected"`
}

// Pagination describes the page within the full filtered and sorted result set.
type Pagination struct {
	Page         int `json:"page"`
	PageSize     int `json:"page_size"`
	TotalResults int `json:"total_results"`
	TotalPages   int `json:"total_pages"`
}

// SearchResult is one assembled result row. Verdict and Rationale are only set
// when the judge ran, Rejected only when the caller asked for it.
type SearchResult struct {
	DocumentID  uuid.UUID  `json:"document_id"`
	Title       string     `json:"title"`
	Admin       string     `json:"admin"`
	PublishDate *time.Time `json:"publish_date"`
	URL         string     `json:"url"`
	Score       float64    `json:"score"`
	Distance    float64    `json:"distance"`
	ChunkID     int64      `json:"chunk_id"`
	ChunkIndex  int        `json:"chunk_index"`
	ChunkText   string     `json:"chunk_text"`
	Rank        int        `json:"rank"`
	Verdict     *Decision  `json:"verdict,omitempty"`
	Rationale   *string    `json:"rationale,omitempty"`
	Rejected    *bool      `json:"rejected,omitempty"`
	// JudgeRaw holds the judge's answer when it could not be read as a verdict.
	JudgeRaw    *string    `json:"-"`
}

// SearchMetadata carries diagnostics about how the response was produced.
type SearchMetadata struct {
	QueryLength        int   `json:"query_length"`
	ElapsedMS          int64 `json:"elapsed_ms"`
	Degraded           bool  `json:"degraded"`
	JudgeBatches       int   `json:"judge_batches,omitempty"`
	JudgeFailedBatches int   `json:"judge_failed_batches,omitempty"`
	JudgeInvalid       int   `json:"judge_invalid,omitempty"`
}

// SearchResponse is the assembled output of one search.
type SearchResponse struct {
	Query          string         `json:"query"`
	Mode           Mode           `json:"mode"`
	JudgeAvailable bool           `json:"judge_available"`
	Filters        SearchFilters  `json:"filters"`
	Pagination     Pagination     `json:"pagination"`
	Results        []SearchResult `json:"results"`
	Metadata       SearchMetadata `json:"metadata"`
}
