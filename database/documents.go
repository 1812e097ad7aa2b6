package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
	"github.com/siherrmann/briefings/sql"
)

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	InsertDocument(ctx context.Context, doc *model.Document) error
	SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error)
	SelectDocumentsWithoutChunks(ctx context.Context, limit int) ([]*model.Document, error)
	SelectAdmins(ctx context.Context) ([]string, error)
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
}

// NewDocumentsDBHandler creates a new documents database handler.
// It initializes the database connection and loads document-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
	}

	err := sql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table in the database.
// If the table already exists, it does not create it again.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		return helper.NewError("init documents", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	doc := &model.Document{}
	err := row.Scan(
		&doc.ID,
		&doc.RID,
		&doc.Admin,
		&doc.Title,
		&doc.URL,
		&doc.PublishDate,
		&doc.CleanText,
		&doc.Status,
		&doc.Metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// InsertDocument inserts a new document. ID, RID and timestamps are set from
// the stored row.
func (h *DocumentsDBHandler) InsertDocument(ctx context.Context, doc *model.Document) error {
	status := doc.Status
	if status == "" {
		status = model.DocumentStatusPending
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_document($1, $2, $3, $4, $5, $6, $7)`,
		doc.Admin,
		doc.Title,
		doc.URL,
		doc.PublishDate,
		doc.CleanText,
		string(status),
		doc.Metadata,
	)

	inserted, err := scanDocument(row)
	if err != nil {
		return helper.NewError("scan", err)
	}
	*doc = *inserted

	return nil
}

// SelectDocument retrieves a document by RID
func (h *DocumentsDBHandler) SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_document($1)`,
		rid,
	)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return doc, nil
}

// SelectDocumentsWithoutChunks retrieves up to limit scraped documents with
// text that have no chunks yet, ordered by id.
func (h *DocumentsDBHandler) SelectDocumentsWithoutChunks(ctx context.Context, limit int) ([]*model.Document, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_documents_without_chunks($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		docs = append(docs, doc)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return docs, nil
}

// SelectAdmins retrieves the distinct administration tags, sorted.
func (h *DocumentsDBHandler) SelectAdmins(ctx context.Context) ([]string, error) {
	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_admins()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	admins := []string{}
	for rows.Next() {
		var admin string
		if err := rows.Scan(&admin); err != nil {
			return nil, helper.NewError("scan", err)
		}
		admins = append(admins, admin)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return admins, nil
}
