package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"custodia/internal/platform/metrics"
	"custodia/pkg/requestcontext"

	id "custodia/pkg/domain"
)

// defaultListLimit bounds queries that do not name their own limit.
const defaultListLimit = 100

// Service records and queries audit entries. Write failures propagate to the
// caller unchanged - no retry, no buffering; the caller decides whether an
// audit failure is fatal to the originating operation.
type Service struct {
	store   Store
	metrics *metrics.Metrics
}

func NewService(store Store, m *metrics.Metrics) *Service {
	return &Service{store: store, metrics: m}
}

// Record appends one entry and returns its id. The timestamp is assigned
// here, a fresh correlation id is minted per call, and the user agent is
// taken from the request context when the event does not carry one. IP
// address and session id are never inferred; callers with that context
// supply it on the event.
func (s *Service) Record(ctx context.Context, clinicID id.ClinicID, actor Actor, event Event) (uuid.UUID, error) {
	entry := Entry{
		ID:             uuid.New(),
		ClinicID:       clinicID,
		ActorID:        actor.ID,
		ActorName:      actor.Name,
		Action:         event.Action,
		ResourceType:   event.ResourceType,
		ResourceID:     event.ResourceID,
		Details:        event.Details,
		ChangedFields:  event.ChangedFields,
		PreviousValues: event.PreviousValues,
		NewValues:      event.NewValues,
		IPAddress:      event.IPAddress,
		UserAgent:      event.UserAgent,
		Location:       event.Location,
		SessionID:      event.SessionID,
		RequestID:      uuid.NewString(),
		CreatedAt:      requestcontext.Now(ctx),
	}

	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}
	if device := requestcontext.Device(ctx); device != "" {
		if entry.Details == nil {
			entry.Details = map[string]string{}
		}
		if _, ok := entry.Details["device"]; !ok {
			entry.Details["device"] = device
		}
	}

	if err := s.store.Append(ctx, entry); err != nil {
		return uuid.Nil, fmt.Errorf("append audit entry: %w", err)
	}
	if s.metrics != nil {
		s.metrics.AuditEntriesRecorded.WithLabelValues(entry.Action.String()).Inc()
	}
	return entry.ID, nil
}

// ListByResource returns the audit trail of one resource, newest first.
func (s *Service) ListByResource(ctx context.Context, clinicID id.ClinicID, resourceType ResourceType, resourceID string, limit int) ([]Entry, error) {
	return s.store.ListByResource(ctx, clinicID, resourceType, resourceID, normalizeLimit(limit))
}

// ListByUser returns entries recorded for one actor, newest first.
func (s *Service) ListByUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID, limit int) ([]Entry, error) {
	return s.store.ListByUser(ctx, clinicID, userID, normalizeLimit(limit))
}

// ListByAction returns entries for one action type, newest first.
func (s *Service) ListByAction(ctx context.Context, clinicID id.ClinicID, action Action, limit int) ([]Entry, error) {
	return s.store.ListByAction(ctx, clinicID, action, normalizeLimit(limit))
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
