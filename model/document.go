package model

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the scrape state of a document, owned by the ingestion side.
type DocumentStatus string

const (
	DocumentStatusPending DocumentStatus = "pending"
	DocumentStatusScraped DocumentStatus = "scraped"
	DocumentStatusError   DocumentStatus = "error"
)

// Document represents an archived transcript
type Document struct {
	ID          int64          `json:"id"`
	RID         uuid.UUID      `json:"rid"`
	Admin       string         `json:"admin"`
	Title       string         `json:"title"`
	URL         string         `json:"url"`
	PublishDate *time.Time     `json:"publish_date,omitempty"`
	CleanText   string         `json:"clean_text,omitempty"`
	Status      DocumentStatus `json:"status"`
	Metadata    Metadata       `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DisplayTitle returns the title or a placeholder for untitled documents.
func (d *Document) DisplayTitle() string {
	if d.Title == "" {
		return "Untitled"
	}
	return d.Title
}
