package consent

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"

	id "custodia/pkg/domain"
)

// PostgresStore is the durable consent store.
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

// Save inserts a new record. Joins the transaction in context so the record
// and its audit outbox row commit atomically.
func (s *PostgresStore) Save(ctx context.Context, record Record) error {
	categories := make([]string, len(record.DataCategories))
	for i, c := range record.DataCategories {
		categories[i] = string(c)
	}

	query := `
		INSERT INTO consents (
			id, clinic_id, user_id, purpose, data_categories, status,
			version, ip_address, user_agent, granted_at, withdrawn_at,
			expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID,
		uuid.UUID(record.ClinicID),
		uuid.UUID(record.UserID),
		string(record.Purpose),
		pq.Array(categories),
		string(record.Status),
		record.Version,
		record.IPAddress,
		record.UserAgent,
		record.GrantedAt,
		record.WithdrawnAt,
		record.ExpiresAt,
		record.CreatedAt,
		record.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, clinicID id.ClinicID, recordID uuid.UUID) (Record, error) {
	query := selectRecords + `
		WHERE clinic_id = $1 AND id = $2
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(clinicID), recordID)
	if err != nil {
		return Record{}, fmt.Errorf("query consent record: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, sentinel.ErrNotFound
	}
	return records[0], nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID) ([]Record, error) {
	query := selectRecords + `
		WHERE clinic_id = $1 AND user_id = $2
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(clinicID), uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query consent records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// FindLatest returns the most recent record for the pair, whatever its
// status. Validity is derived from it by the service; filtering to granted
// here would let an older grant shadow a newer withdrawal.
func (s *PostgresStore) FindLatest(ctx context.Context, clinicID id.ClinicID, userID id.UserID, purpose Purpose) (Record, error) {
	query := selectRecords + `
		WHERE clinic_id = $1 AND user_id = $2 AND purpose = $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	rows, err := s.db.QueryContext(ctx, query,
		uuid.UUID(clinicID), uuid.UUID(userID), string(purpose))
	if err != nil {
		return Record{}, fmt.Errorf("query latest consent: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, sentinel.ErrNotFound
	}
	return records[0], nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, clinicID id.ClinicID, recordID uuid.UUID, status Status, at time.Time) error {
	var query string
	switch status {
	case StatusGranted:
		query = `
			UPDATE consents
			SET status = $3, granted_at = $4, updated_at = $4
			WHERE clinic_id = $1 AND id = $2
		`
	case StatusWithdrawn:
		query = `
			UPDATE consents
			SET status = $3, withdrawn_at = $4, updated_at = $4
			WHERE clinic_id = $1 AND id = $2
		`
	default:
		return fmt.Errorf("unknown consent status: %q", status)
	}

	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(clinicID), recordID, string(status), at)
	if err != nil {
		return fmt.Errorf("update consent status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent status: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectRecords = `
	SELECT id, clinic_id, user_id, purpose, data_categories, status,
		   version, ip_address, user_agent, granted_at, withdrawn_at,
		   expires_at, created_at, updated_at
	FROM consents
`

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record

	for rows.Next() {
		var (
			record     Record
			clinicID   uuid.UUID
			userID     uuid.UUID
			purpose    string
			categories pq.StringArray
			status     string
		)

		if err := rows.Scan(
			&record.ID,
			&clinicID,
			&userID,
			&purpose,
			&categories,
			&status,
			&record.Version,
			&record.IPAddress,
			&record.UserAgent,
			&record.GrantedAt,
			&record.WithdrawnAt,
			&record.ExpiresAt,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}

		record.ClinicID = id.ClinicID(clinicID)
		record.UserID = id.UserID(userID)
		record.Purpose = Purpose(purpose)
		record.Status = Status(status)
		record.DataCategories = make([]DataCategory, len(categories))
		for i, c := range categories {
			record.DataCategories[i] = DataCategory(c)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent records: %w", err)
	}
	return records, nil
}
