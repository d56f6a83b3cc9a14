// Package service orchestrates consent writes and validity checks, keeping
// handlers thin and domain logic out of the transport layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"custodia/internal/audit"
	"custodia/internal/consent"
	"custodia/internal/platform/metrics"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/tx"
)

// AuditRecorder is the slice of the audit service this package needs.
type AuditRecorder interface {
	Record(ctx context.Context, clinicID id.ClinicID, actor audit.Actor, event audit.Event) (uuid.UUID, error)
}

// Decision is one grant-or-withdraw request from a subject.
type Decision struct {
	Purpose        consent.Purpose
	DataCategories []consent.DataCategory
	Status         consent.Status
	// Version defaults to consent.DefaultVersion when empty.
	Version   string
	ExpiresAt *time.Time
	IPAddress string
	UserAgent string
}

// Service persists consent decisions and answers purpose-validity checks.
// IsValid is the single source of truth for "is this purpose authorized";
// nothing else in the system reimplements consent logic.
type Service struct {
	store   consent.Store
	auditor AuditRecorder
	runner  tx.Runner
	cache   *consent.ValidityCache
	metrics *metrics.Metrics
}

func NewService(store consent.Store, auditor AuditRecorder, runner tx.Runner, cache *consent.ValidityCache, m *metrics.Metrics) *Service {
	if runner == nil {
		runner = tx.NoopRunner{}
	}
	return &Service{store: store, auditor: auditor, runner: runner, cache: cache, metrics: m}
}

// Record appends a new consent record and writes the matching audit entry.
// On the SQL path both writes share one transaction; in-memory they are
// sequential, record first. A record-write failure aborts the call; the
// caller never sees success for a record that did not durably persist.
func (s *Service) Record(ctx context.Context, clinicID id.ClinicID, userID id.UserID, d Decision) (uuid.UUID, error) {
	if d.Version == "" {
		d.Version = consent.DefaultVersion
	}

	now := requestcontext.Now(ctx)
	record := consent.Record{
		ID:             uuid.New(),
		ClinicID:       clinicID,
		UserID:         userID,
		Purpose:        d.Purpose,
		DataCategories: dedupeCategories(d.DataCategories),
		Status:         d.Status,
		Version:        d.Version,
		IPAddress:      d.IPAddress,
		UserAgent:      d.UserAgent,
		ExpiresAt:      d.ExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch d.Status {
	case consent.StatusGranted:
		record.GrantedAt = &now
	case consent.StatusWithdrawn:
		record.WithdrawnAt = &now
	default:
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid consent status: "+string(d.Status))
	}

	action := audit.ActionConsentGrant
	if d.Status == consent.StatusWithdrawn {
		action = audit.ActionConsentWithdraw
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Save(ctx, record); err != nil {
			return fmt.Errorf("save consent record: %w", err)
		}
		_, err := s.auditor.Record(ctx, clinicID, audit.Actor{ID: userID}, audit.Event{
			Action:       action,
			ResourceType: audit.ResourceConsent,
			ResourceID:   record.ID.String(),
			Details: map[string]string{
				"purpose":         string(record.Purpose),
				"data_categories": joinCategories(record.DataCategories),
			},
			IPAddress: d.IPAddress,
			UserAgent: d.UserAgent,
		})
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, clinicID, userID, record.Purpose)
	}
	if s.metrics != nil {
		s.metrics.ConsentDecisions.WithLabelValues(string(record.Status)).Inc()
	}
	return record.ID, nil
}

// ListForUser returns every consent record for the subject, newest first,
// with no status filtering. Callers wanting "currently granted" use IsValid.
func (s *Service) ListForUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID) ([]consent.Record, error) {
	return s.store.ListByUser(ctx, clinicID, userID)
}

// SetStatus flips an existing record in place. It appends no new record and
// emits no audit entry; only the Record path does. Callers wanting
// audit-grade history must use Record.
func (s *Service) SetStatus(ctx context.Context, clinicID id.ClinicID, recordID uuid.UUID, status consent.Status) error {
	record, err := s.store.GetByID(ctx, clinicID, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "consent record not found")
		}
		return err
	}

	if err := s.store.UpdateStatus(ctx, clinicID, recordID, status, requestcontext.Now(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "consent record not found")
		}
		return err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, clinicID, record.UserID, record.Purpose)
	}
	return nil
}

// IsValid reports whether the purpose is currently authorized for the
// subject: the most recent record for the pair is granted and its optional
// expiry has not passed. A withdrawal shadows every earlier grant.
func (s *Service) IsValid(ctx context.Context, clinicID id.ClinicID, userID id.UserID, purpose consent.Purpose) (bool, error) {
	if s.cache != nil {
		if valid, found := s.cache.Get(ctx, clinicID, userID, purpose); found {
			if s.metrics != nil {
				s.metrics.ConsentCacheHits.Inc()
			}
			return valid, nil
		}
		if s.metrics != nil {
			s.metrics.ConsentCacheMisses.Inc()
		}
	}

	record, err := s.store.FindLatest(ctx, clinicID, userID, purpose)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.cacheSet(ctx, clinicID, userID, purpose, false)
			return false, nil
		}
		return false, err
	}

	valid := record.ValidAt(requestcontext.Now(ctx))
	s.cacheSet(ctx, clinicID, userID, purpose, valid)
	return valid, nil
}

func (s *Service) cacheSet(ctx context.Context, clinicID id.ClinicID, userID id.UserID, purpose consent.Purpose, valid bool) {
	if s.cache != nil {
		s.cache.Set(ctx, clinicID, userID, purpose, valid)
	}
}

func dedupeCategories(categories []consent.DataCategory) []consent.DataCategory {
	seen := make(map[consent.DataCategory]struct{}, len(categories))
	out := make([]consent.DataCategory, 0, len(categories))
	for _, c := range categories {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

func joinCategories(categories []consent.DataCategory) string {
	raw := make([]string, len(categories))
	for i, c := range categories {
		raw[i] = string(c)
	}
	return strings.Join(raw, ",")
}
