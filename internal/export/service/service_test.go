package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"custodia/internal/audit"
	"custodia/internal/consent"
	"custodia/internal/export"
	"custodia/internal/export/service"
	"custodia/pkg/requestcontext"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
)

type ExportServiceSuite struct {
	suite.Suite
	store      *export.InMemoryStore
	auditStore *audit.InMemoryStore
	svc        *service.Service
	clinicID   id.ClinicID
	userID     id.UserID
	now        time.Time
}

func TestExportServiceSuite(t *testing.T) {
	suite.Run(t, new(ExportServiceSuite))
}

func (s *ExportServiceSuite) SetupTest() {
	s.store = export.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	auditor := audit.NewService(s.auditStore, nil)
	s.svc = service.NewService(s.store, auditor, nil, nil)
	s.clinicID = id.ClinicID(uuid.New())
	s.userID = id.UserID(uuid.New())
	s.now = time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC)
}

func (s *ExportServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *ExportServiceSuite) create() uuid.UUID {
	requestID, err := s.svc.Create(s.ctx(), s.clinicID, s.userID, service.CreateRequest{
		Type:           export.TypePortability,
		DataCategories: []consent.DataCategory{consent.CategoryHealth},
		Format:         export.FormatJSON,
	})
	s.Require().NoError(err)
	return requestID
}

func (s *ExportServiceSuite) TestCreateDefaults() {
	requestID := s.create()

	req, err := s.svc.GetByID(s.ctx(), s.clinicID, requestID)
	s.Require().NoError(err)
	s.Require().NotNil(req)
	s.Equal(export.StatusPending, req.Status)
	s.Empty(req.DownloadURL)
	s.Nil(req.DownloadExpiresAt)
	s.Nil(req.CompletedAt)
	s.Empty(req.ErrorMessage)
	s.Equal(s.now, req.CreatedAt)
}

func (s *ExportServiceSuite) TestCreateWritesOneAuditEntry() {
	requestID := s.create()

	entries, err := s.auditStore.ListByAction(s.ctx(), s.clinicID, audit.ActionDataRequest, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ResourceUser, entries[0].ResourceType)
	s.Equal(s.userID.String(), entries[0].ResourceID)
	s.Equal(requestID.String(), entries[0].Details["request_id"])
	s.Equal("portability", entries[0].Details["type"])
	s.Equal("health", entries[0].Details["data_categories"])
}

func (s *ExportServiceSuite) TestDuplicateCreatesAreDistinct() {
	first := s.create()
	second := s.create()
	s.NotEqual(first, second)

	entries, err := s.auditStore.ListByAction(s.ctx(), s.clinicID, audit.ActionDataRequest, 10)
	s.Require().NoError(err)
	s.Len(entries, 2)
}

func (s *ExportServiceSuite) TestGetByIDAbsent() {
	req, err := s.svc.GetByID(s.ctx(), s.clinicID, uuid.New())
	s.Require().NoError(err)
	s.Nil(req)
}

func (s *ExportServiceSuite) TestListForUserNewestFirst() {
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ctx := requestcontext.WithTime(context.Background(), s.now.Add(time.Duration(i)*time.Minute))
		requestID, err := s.svc.Create(ctx, s.clinicID, s.userID, service.CreateRequest{
			Type:   export.TypeAccess,
			Format: export.FormatJSON,
		})
		s.Require().NoError(err)
		ids = append(ids, requestID)
	}

	requests, err := s.svc.ListForUser(s.ctx(), s.clinicID, s.userID)
	s.Require().NoError(err)
	s.Require().Len(requests, 3)
	s.Equal(ids[2], requests[0].ID)
	s.Equal(ids[0], requests[2].ID)
}

func (s *ExportServiceSuite) TestCompletedWithURLSetsArtifacts() {
	requestID := s.create()
	s.Require().NoError(s.svc.SetStatus(s.ctx(), s.clinicID, requestID, export.StatusProcessing, service.StatusUpdate{}))

	completedAt := s.now.Add(time.Hour)
	ctx := requestcontext.WithTime(context.Background(), completedAt)
	s.Require().NoError(s.svc.SetStatus(ctx, s.clinicID, requestID, export.StatusCompleted, service.StatusUpdate{
		DownloadURL: "https://x/y",
	}))

	req, err := s.svc.GetByID(ctx, s.clinicID, requestID)
	s.Require().NoError(err)
	s.Require().NotNil(req)
	s.Equal(export.StatusCompleted, req.Status)
	s.Equal("https://x/y", req.DownloadURL)
	s.Require().NotNil(req.CompletedAt)
	s.Equal(completedAt, *req.CompletedAt)
	s.Require().NotNil(req.DownloadExpiresAt)
	s.Equal(completedAt.Add(24*time.Hour), *req.DownloadExpiresAt)
}

func (s *ExportServiceSuite) TestCompletedWithoutURLLeavesArtifactsUnset() {
	requestID := s.create()
	s.Require().NoError(s.svc.SetStatus(s.ctx(), s.clinicID, requestID, export.StatusCompleted, service.StatusUpdate{}))

	req, err := s.svc.GetByID(s.ctx(), s.clinicID, requestID)
	s.Require().NoError(err)
	s.Equal(export.StatusCompleted, req.Status)
	s.Empty(req.DownloadURL)
	s.Nil(req.CompletedAt)
	s.Nil(req.DownloadExpiresAt)
}

func (s *ExportServiceSuite) TestProcessingNeverSetsArtifacts() {
	requestID := s.create()
	s.Require().NoError(s.svc.SetStatus(s.ctx(), s.clinicID, requestID, export.StatusProcessing, service.StatusUpdate{
		DownloadURL: "https://x/y",
	}))

	req, err := s.svc.GetByID(s.ctx(), s.clinicID, requestID)
	s.Require().NoError(err)
	s.Equal(export.StatusProcessing, req.Status)
	s.Empty(req.DownloadURL)
	s.Nil(req.DownloadExpiresAt)
}

func (s *ExportServiceSuite) TestFailedCarriesErrorMessage() {
	requestID := s.create()
	s.Require().NoError(s.svc.SetStatus(s.ctx(), s.clinicID, requestID, export.StatusFailed, service.StatusUpdate{
		ErrorMessage: "upstream unavailable",
	}))

	req, err := s.svc.GetByID(s.ctx(), s.clinicID, requestID)
	s.Require().NoError(err)
	s.Equal(export.StatusFailed, req.Status)
	s.Equal("upstream unavailable", req.ErrorMessage)
}

func (s *ExportServiceSuite) TestTerminalStatusNeverRegresses() {
	requestID := s.create()
	s.Require().NoError(s.svc.SetStatus(s.ctx(), s.clinicID, requestID, export.StatusFailed, service.StatusUpdate{}))

	err := s.svc.SetStatus(s.ctx(), s.clinicID, requestID, export.StatusPending, service.StatusUpdate{})
	s.Require().Error(err)
	s.Equal(dErrors.CodeInvalidState, dErrors.CodeOf(err))

	err = s.svc.SetStatus(s.ctx(), s.clinicID, requestID, export.StatusProcessing, service.StatusUpdate{})
	s.Require().Error(err)
	s.Equal(dErrors.CodeInvalidState, dErrors.CodeOf(err))
}

func (s *ExportServiceSuite) TestCompletedMayExpire() {
	requestID := s.create()
	s.Require().NoError(s.svc.SetStatus(s.ctx(), s.clinicID, requestID, export.StatusCompleted, service.StatusUpdate{
		DownloadURL: "https://x/y",
	}))
	s.Require().NoError(s.svc.SetStatus(s.ctx(), s.clinicID, requestID, export.StatusExpired, service.StatusUpdate{}))

	req, err := s.svc.GetByID(s.ctx(), s.clinicID, requestID)
	s.Require().NoError(err)
	s.Equal(export.StatusExpired, req.Status)
}

func (s *ExportServiceSuite) TestSetStatusUnknownRequest() {
	err := s.svc.SetStatus(s.ctx(), s.clinicID, uuid.New(), export.StatusProcessing, service.StatusUpdate{})
	s.Require().Error(err)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *ExportServiceSuite) TestEffectiveStatusDerivesExpiry() {
	requestID := s.create()
	s.Require().NoError(s.svc.SetStatus(s.ctx(), s.clinicID, requestID, export.StatusCompleted, service.StatusUpdate{
		DownloadURL: "https://x/y",
	}))

	req, err := s.svc.GetByID(s.ctx(), s.clinicID, requestID)
	s.Require().NoError(err)
	s.Equal(export.StatusCompleted, req.EffectiveStatus(s.now.Add(time.Hour)))
	s.Equal(export.StatusExpired, req.EffectiveStatus(s.now.Add(25*time.Hour)))
	// The stored status is untouched by the derivation.
	s.Equal(export.StatusCompleted, req.Status)
}
