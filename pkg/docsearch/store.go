package docsearch

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const companyDocumentsSQL = `
SELECT d.id,
       COALESCE(d.metadata->>'filename', '') AS filename,
       COALESCE(d.metadata->>'content_type', '') AS content_type,
       COALESCE(d.metadata->>'file_size', '') AS file_size,
       COALESCE(d.parsed_content, '') AS parsed_content,
       COALESCE(d.document_summary, '') AS document_summary,
       d.created_at
FROM public.documents_01_14 d
JOIN public.companies_documents_join cdj ON d.id = cdj.attachment_id
WHERE cdj.company_id = $1
ORDER BY d.created_at DESC`

// PostgresStore loads company documents from the document tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a document store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CompanyDocuments returns all documents joined to the company, newest
// first.
func (s *PostgresStore) CompanyDocuments(ctx context.Context, companyID int64) ([]Document, error) {
	rows, err := s.pool.Query(ctx, companyDocumentsSQL, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc       Document
			createdAt *time.Time
		)
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.FileSize, &doc.Content, &doc.Summary, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if createdAt != nil {
			doc.CreatedAt = *createdAt
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	return docs, nil
}
