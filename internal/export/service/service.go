// Package service owns the export-request lifecycle: creation, reads with
// derived expiry, and guarded status transitions.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"custodia/internal/audit"
	"custodia/internal/consent"
	"custodia/internal/export"
	"custodia/internal/platform/config"
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

// CreateRequest is the subject-facing creation input.
type CreateRequest struct {
	Type           export.Type
	DataCategories []consent.DataCategory
	Format         export.Format
	Reason         string
}

// StatusUpdate carries the operator-facing transition payload. DownloadURL is
// honoured only on the completed transition; ErrorMessage only on failed;
// Notes apply to any transition.
type StatusUpdate struct {
	DownloadURL  string
	ErrorMessage string
	Notes        string
}

// Service tracks export requests. The fulfillment pipeline that produces the
// artifact is external; failures there show up as failed transitions here.
type Service struct {
	store   export.Store
	auditor AuditRecorder
	runner  tx.Runner
	metrics *metrics.Metrics
}

func NewService(store export.Store, auditor AuditRecorder, runner tx.Runner, m *metrics.Metrics) *Service {
	if runner == nil {
		runner = tx.NoopRunner{}
	}
	return &Service{store: store, auditor: auditor, runner: runner, metrics: m}
}

// Create persists a pending request with empty artifacts and writes one audit
// entry naming the new request id. Both writes share a transaction on the SQL
// path.
func (s *Service) Create(ctx context.Context, clinicID id.ClinicID, userID id.UserID, cr CreateRequest) (uuid.UUID, error) {
	now := requestcontext.Now(ctx)
	req := export.Request{
		ID:             uuid.New(),
		ClinicID:       clinicID,
		UserID:         userID,
		Type:           cr.Type,
		Status:         export.StatusPending,
		DataCategories: cr.DataCategories,
		Format:         cr.Format,
		Reason:         cr.Reason,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Save(ctx, req); err != nil {
			return fmt.Errorf("save export request: %w", err)
		}
		_, err := s.auditor.Record(ctx, clinicID, audit.Actor{ID: userID}, audit.Event{
			Action:       audit.ActionDataRequest,
			ResourceType: audit.ResourceUser,
			ResourceID:   userID.String(),
			Details: map[string]string{
				"request_id":      req.ID.String(),
				"type":            req.Type.String(),
				"data_categories": joinCategories(req.DataCategories),
			},
			IPAddress: requestcontext.ClientIP(ctx),
		})
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	if s.metrics != nil {
		s.metrics.ExportRequests.WithLabelValues(req.Type.String()).Inc()
	}
	return req.ID, nil
}

// GetByID returns the request or (nil, nil) when the id does not resolve.
// Store failures propagate.
func (s *Service) GetByID(ctx context.Context, clinicID id.ClinicID, requestID uuid.UUID) (*export.Request, error) {
	req, err := s.store.GetByID(ctx, clinicID, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// ListForUser returns the subject's requests, newest first.
func (s *Service) ListForUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID) ([]export.Request, error) {
	return s.store.ListByUser(ctx, clinicID, userID)
}

// SetStatus transitions a request. Illegal steps, including any regression
// from a terminal status, are rejected with an invalid_state error. The
// completed transition with a download URL stamps the artifact fields and
// fixes the download window at 24 hours from completion; completed without a
// URL is legal and leaves them unset.
func (s *Service) SetStatus(ctx context.Context, clinicID id.ClinicID, requestID uuid.UUID, status export.Status, update StatusUpdate) error {
	req, err := s.store.GetByID(ctx, clinicID, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "export request not found")
		}
		return err
	}

	if !export.CanTransition(req.Status, status) {
		return dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("cannot transition export request from %s to %s", req.Status, status))
	}

	now := requestcontext.Now(ctx)
	req.Status = status
	req.UpdatedAt = now
	if update.Notes != "" {
		req.Notes = update.Notes
	}

	switch status {
	case export.StatusCompleted:
		if update.DownloadURL != "" {
			expiry := now.Add(config.DownloadWindow)
			req.DownloadURL = update.DownloadURL
			req.CompletedAt = &now
			req.DownloadExpiresAt = &expiry
		}
	case export.StatusFailed:
		req.ErrorMessage = update.ErrorMessage
	}

	if err := s.store.Update(ctx, req); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "export request not found")
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.ExportTransitions.WithLabelValues(status.String()).Inc()
	}
	return nil
}

func joinCategories(categories []consent.DataCategory) string {
	raw := make([]string, len(categories))
	for i, c := range categories {
		raw[i] = string(c)
	}
	return strings.Join(raw, ",")
}
