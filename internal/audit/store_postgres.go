package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	txcontext "custodia/pkg/platform/tx"

	id "custodia/pkg/domain"
)

// PostgresStore implements Store using the transactional outbox pattern.
// Append writes to the audit_outbox table - inside the caller's transaction
// when one is in context - and the outbox worker publishes rows to Kafka.
// The consumer materialises audit_events, which the list queries read.
type PostgresStore struct {
	db     *sql.DB
	direct bool
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresDirect returns a store that materialises entries into
// audit_events on Append instead of staging them in the outbox. Used when no
// broker is configured: entries must become queryable without the pipeline,
// or every audit query would silently return nothing while writes succeed.
func NewPostgresDirect(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, direct: true}
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

// entryPayload is the JSON structure carried through the outbox and Kafka.
type entryPayload struct {
	ID             string            `json:"id"`
	ClinicID       string            `json:"clinic_id"`
	ActorID        string            `json:"actor_id"`
	ActorName      string            `json:"actor_name,omitempty"`
	Action         string            `json:"action"`
	ResourceType   string            `json:"resource_type"`
	ResourceID     string            `json:"resource_id"`
	Details        map[string]string `json:"details,omitempty"`
	ChangedFields  []string          `json:"changed_fields,omitempty"`
	PreviousValues map[string]any    `json:"previous_values,omitempty"`
	NewValues      map[string]any    `json:"new_values,omitempty"`
	IPAddress      string            `json:"ip_address,omitempty"`
	UserAgent      string            `json:"user_agent,omitempty"`
	Location       string            `json:"location,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
	RequestID      string            `json:"request_id"`
	CreatedAt      string            `json:"created_at"`
}

func payloadFromEntry(entry Entry) entryPayload {
	return entryPayload{
		ID:             entry.ID.String(),
		ClinicID:       entry.ClinicID.String(),
		ActorID:        entry.ActorID.String(),
		ActorName:      entry.ActorName,
		Action:         string(entry.Action),
		ResourceType:   string(entry.ResourceType),
		ResourceID:     entry.ResourceID,
		Details:        entry.Details,
		ChangedFields:  entry.ChangedFields,
		PreviousValues: entry.PreviousValues,
		NewValues:      entry.NewValues,
		IPAddress:      entry.IPAddress,
		UserAgent:      entry.UserAgent,
		Location:       entry.Location,
		SessionID:      entry.SessionID,
		RequestID:      entry.RequestID,
		CreatedAt:      entry.CreatedAt.Format(time.RFC3339Nano),
	}
}

// PayloadFromEntry encodes an entry into the wire payload carried through
// the outbox and Kafka.
func PayloadFromEntry(entry Entry) ([]byte, error) {
	raw, err := json.Marshal(payloadFromEntry(entry))
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return raw, nil
}

// EntryFromPayload decodes an outbox/Kafka payload back into an Entry.
func EntryFromPayload(raw []byte) (Entry, error) {
	var p entryPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Entry{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	entryID, err := uuid.Parse(p.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("parse entry id: %w", err)
	}
	clinicID, err := id.ParseClinicID(p.ClinicID)
	if err != nil {
		return Entry{}, err
	}
	actorID, err := id.ParseUserID(p.ActorID)
	if err != nil {
		return Entry{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, p.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at: %w", err)
	}
	return Entry{
		ID:             entryID,
		ClinicID:       clinicID,
		ActorID:        actorID,
		ActorName:      p.ActorName,
		Action:         Action(p.Action),
		ResourceType:   ResourceType(p.ResourceType),
		ResourceID:     p.ResourceID,
		Details:        p.Details,
		ChangedFields:  p.ChangedFields,
		PreviousValues: p.PreviousValues,
		NewValues:      p.NewValues,
		IPAddress:      p.IPAddress,
		UserAgent:      p.UserAgent,
		Location:       p.Location,
		SessionID:      p.SessionID,
		RequestID:      p.RequestID,
		CreatedAt:      createdAt,
	}, nil
}

// Append writes the entry to the outbox for Kafka publishing, or straight to
// audit_events in direct mode. Joins the transaction in context so the
// primary record write and the audit write commit atomically.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	if s.direct {
		return s.Materialize(ctx, entry)
	}

	payloadBytes, err := PayloadFromEntry(entry)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_outbox (id, clinic_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		entry.ID,
		uuid.UUID(entry.ClinicID),
		string(entry.Action),
		payloadBytes,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// Materialize inserts an entry into the audit_events table, joining the
// transaction in context when one is present. Used by the Kafka consumer and
// by direct-mode Append; idempotent so redelivered records are ignored.
func (s *PostgresStore) Materialize(ctx context.Context, entry Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	previous, err := json.Marshal(entry.PreviousValues)
	if err != nil {
		return fmt.Errorf("marshal previous values: %w", err)
	}
	next, err := json.Marshal(entry.NewValues)
	if err != nil {
		return fmt.Errorf("marshal new values: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			id, clinic_id, actor_id, actor_name, action,
			resource_type, resource_id, details, changed_fields,
			previous_values, new_values, ip_address, user_agent,
			location, session_id, request_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		entry.ID,
		uuid.UUID(entry.ClinicID),
		uuid.UUID(entry.ActorID),
		entry.ActorName,
		string(entry.Action),
		string(entry.ResourceType),
		entry.ResourceID,
		details,
		pq.Array(entry.ChangedFields),
		previous,
		next,
		entry.IPAddress,
		entry.UserAgent,
		entry.Location,
		entry.SessionID,
		entry.RequestID,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByResource(ctx context.Context, clinicID id.ClinicID, resourceType ResourceType, resourceID string, limit int) ([]Entry, error) {
	query := selectEntries + `
		WHERE clinic_id = $1 AND resource_type = $2 AND resource_id = $3
		ORDER BY created_at DESC
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(clinicID), string(resourceType), resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListByUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID, limit int) ([]Entry, error) {
	query := selectEntries + `
		WHERE clinic_id = $1 AND actor_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(clinicID), uuid.UUID(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListByAction(ctx context.Context, clinicID id.ClinicID, action Action, limit int) ([]Entry, error) {
	query := selectEntries + `
		WHERE clinic_id = $1 AND action = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(clinicID), string(action), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

const selectEntries = `
	SELECT id, clinic_id, actor_id, actor_name, action,
		   resource_type, resource_id, details, changed_fields,
		   previous_values, new_values, ip_address, user_agent,
		   location, session_id, request_id, created_at
	FROM audit_events
`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry

	for rows.Next() {
		var (
			entry          Entry
			entryID        uuid.UUID
			clinicID       uuid.UUID
			actorID        uuid.UUID
			action         string
			resourceType   string
			details        []byte
			changedFields  pq.StringArray
			previous, next []byte
		)

		if err := rows.Scan(
			&entryID,
			&clinicID,
			&actorID,
			&entry.ActorName,
			&action,
			&resourceType,
			&entry.ResourceID,
			&details,
			&changedFields,
			&previous,
			&next,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.Location,
			&entry.SessionID,
			&entry.RequestID,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		entry.ID = entryID
		entry.ClinicID = id.ClinicID(clinicID)
		entry.ActorID = id.UserID(actorID)
		entry.Action = Action(action)
		entry.ResourceType = ResourceType(resourceType)
		entry.ChangedFields = changedFields
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		if len(previous) > 0 {
			if err := json.Unmarshal(previous, &entry.PreviousValues); err != nil {
				return nil, fmt.Errorf("unmarshal previous values: %w", err)
			}
		}
		if len(next) > 0 {
			if err := json.Unmarshal(next, &entry.NewValues); err != nil {
				return nil, fmt.Errorf("unmarshal new values: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return entries, nil
}
