package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"custodia/internal/consent"
	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"

	id "custodia/pkg/domain"
)

// PostgresStore is the durable export-request store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Save inserts a new request. Joins the transaction in context so the request
// and its audit outbox row commit atomically.
func (s *PostgresStore) Save(ctx context.Context, req Request) error {
	categories := make([]string, len(req.DataCategories))
	for i, c := range req.DataCategories {
		categories[i] = string(c)
	}

	query := `
		INSERT INTO export_requests (
			id, clinic_id, user_id, type, status, data_categories, format,
			reason, notes, error_message, download_url, download_expires_at,
			completed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		req.ID,
		uuid.UUID(req.ClinicID),
		uuid.UUID(req.UserID),
		string(req.Type),
		string(req.Status),
		pq.Array(categories),
		string(req.Format),
		req.Reason,
		req.Notes,
		req.ErrorMessage,
		req.DownloadURL,
		req.DownloadExpiresAt,
		req.CompletedAt,
		req.CreatedAt,
		req.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert export request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, clinicID id.ClinicID, requestID uuid.UUID) (Request, error) {
	query := selectRequests + `
		WHERE clinic_id = $1 AND id = $2
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(clinicID), requestID)
	if err != nil {
		return Request{}, fmt.Errorf("query export request: %w", err)
	}
	defer rows.Close()

	requests, err := scanRequests(rows)
	if err != nil {
		return Request{}, err
	}
	if len(requests) == 0 {
		return Request{}, sentinel.ErrNotFound
	}
	return requests[0], nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID) ([]Request, error) {
	query := selectRequests + `
		WHERE clinic_id = $1 AND user_id = $2
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(clinicID), uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query export requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s *PostgresStore) Update(ctx context.Context, req Request) error {
	query := `
		UPDATE export_requests
		SET status = $3, notes = $4, error_message = $5, download_url = $6,
		    download_expires_at = $7, completed_at = $8, updated_at = $9
		WHERE clinic_id = $1 AND id = $2
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(req.ClinicID),
		req.ID,
		string(req.Status),
		req.Notes,
		req.ErrorMessage,
		req.DownloadURL,
		req.DownloadExpiresAt,
		req.CompletedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update export request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update export request: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectRequests = `
	SELECT id, clinic_id, user_id, type, status, data_categories, format,
		   reason, notes, error_message, download_url, download_expires_at,
		   completed_at, created_at, updated_at
	FROM export_requests
`

func scanRequests(rows *sql.Rows) ([]Request, error) {
	var requests []Request

	for rows.Next() {
		var (
			req        Request
			clinicID   uuid.UUID
			userID     uuid.UUID
			reqType    string
			status     string
			categories pq.StringArray
			format     string
		)

		if err := rows.Scan(
			&req.ID,
			&clinicID,
			&userID,
			&reqType,
			&status,
			&categories,
			&format,
			&req.Reason,
			&req.Notes,
			&req.ErrorMessage,
			&req.DownloadURL,
			&req.DownloadExpiresAt,
			&req.CompletedAt,
			&req.CreatedAt,
			&req.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan export request: %w", err)
		}

		req.ClinicID = id.ClinicID(clinicID)
		req.UserID = id.UserID(userID)
		req.Type = Type(reqType)
		req.Status = Status(status)
		req.Format = Format(format)
		req.DataCategories = make([]consent.DataCategory, len(categories))
		for i, c := range categories {
			req.DataCategories[i] = consent.DataCategory(c)
		}

		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export requests: %w", err)
	}
	return requests, nil
}
