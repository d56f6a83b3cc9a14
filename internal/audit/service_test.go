package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"custodia/internal/audit"
	"custodia/pkg/requestcontext"

	id "custodia/pkg/domain"
)

type AuditServiceSuite struct {
	suite.Suite
	store    *audit.InMemoryStore
	svc      *audit.Service
	clinicID id.ClinicID
	userID   id.UserID
	now      time.Time
}

func TestAuditServiceSuite(t *testing.T) {
	suite.Run(t, new(AuditServiceSuite))
}

func (s *AuditServiceSuite) SetupTest() {
	s.store = audit.NewInMemoryStore()
	s.svc = audit.NewService(s.store, nil)
	s.clinicID = id.ClinicID(uuid.New())
	s.userID = id.UserID(uuid.New())
	s.now = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
}

func (s *AuditServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *AuditServiceSuite) TestRecordAssignsServerFields() {
	entryID, err := s.svc.Record(s.ctx(), s.clinicID, audit.Actor{ID: s.userID, Name: "Dr. Silva"}, audit.Event{
		Action:       audit.ActionView,
		ResourceType: audit.ResourcePatient,
		ResourceID:   "patient-1",
	})
	s.Require().NoError(err)
	s.NotEqual(uuid.Nil, entryID)

	entries, err := s.svc.ListByUser(s.ctx(), s.clinicID, s.userID, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(entryID, entries[0].ID)
	s.Equal(s.now, entries[0].CreatedAt)
	s.NotEmpty(entries[0].RequestID)
	s.Equal("Dr. Silva", entries[0].ActorName)
}

func (s *AuditServiceSuite) TestRecordMintsFreshCorrelationIDs() {
	event := audit.Event{
		Action:       audit.ActionView,
		ResourceType: audit.ResourcePatient,
		ResourceID:   "patient-1",
	}
	_, err := s.svc.Record(s.ctx(), s.clinicID, audit.Actor{ID: s.userID}, event)
	s.Require().NoError(err)
	_, err = s.svc.Record(s.ctx(), s.clinicID, audit.Actor{ID: s.userID}, event)
	s.Require().NoError(err)

	entries, err := s.svc.ListByUser(s.ctx(), s.clinicID, s.userID, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.NotEqual(entries[0].ID, entries[1].ID)
	s.NotEqual(entries[0].RequestID, entries[1].RequestID)
}

func (s *AuditServiceSuite) TestRecordDegradesWithoutForensics() {
	_, err := s.svc.Record(s.ctx(), s.clinicID, audit.Actor{ID: s.userID}, audit.Event{
		Action:       audit.ActionDelete,
		ResourceType: audit.ResourceAppointment,
		ResourceID:   "appt-9",
	})
	s.Require().NoError(err)

	entries, err := s.svc.ListByAction(s.ctx(), s.clinicID, audit.ActionDelete, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Empty(entries[0].IPAddress)
	s.Empty(entries[0].UserAgent)
	s.Empty(entries[0].SessionID)
}

func (s *AuditServiceSuite) TestRecordCapturesUserAgentFromContext() {
	ctx := requestcontext.WithUserAgent(s.ctx(), "Mozilla/5.0")
	ctx = requestcontext.WithDevice(ctx, "Chrome 120 on Linux")
	_, err := s.svc.Record(ctx, s.clinicID, audit.Actor{ID: s.userID}, audit.Event{
		Action:       audit.ActionLogin,
		ResourceType: audit.ResourceUser,
		ResourceID:   s.userID.String(),
	})
	s.Require().NoError(err)

	entries, err := s.svc.ListByAction(ctx, s.clinicID, audit.ActionLogin, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("Mozilla/5.0", entries[0].UserAgent)
	s.Equal("Chrome 120 on Linux", entries[0].Details["device"])
	// IP is never inferred from context at this layer.
	s.Empty(entries[0].IPAddress)
}

func (s *AuditServiceSuite) TestEventUserAgentWins() {
	ctx := requestcontext.WithUserAgent(s.ctx(), "Mozilla/5.0")
	_, err := s.svc.Record(ctx, s.clinicID, audit.Actor{ID: s.userID}, audit.Event{
		Action:       audit.ActionLogin,
		ResourceType: audit.ResourceUser,
		ResourceID:   s.userID.String(),
		UserAgent:    "mobile-app/2.1",
	})
	s.Require().NoError(err)

	entries, err := s.svc.ListByAction(ctx, s.clinicID, audit.ActionLogin, 0)
	s.Require().NoError(err)
	s.Equal("mobile-app/2.1", entries[0].UserAgent)
}

func (s *AuditServiceSuite) TestListNewestFirst() {
	for i := 0; i < 3; i++ {
		ctx := requestcontext.WithTime(context.Background(), s.now.Add(time.Duration(i)*time.Minute))
		_, err := s.svc.Record(ctx, s.clinicID, audit.Actor{ID: s.userID}, audit.Event{
			Action:       audit.ActionUpdate,
			ResourceType: audit.ResourceMedicalRecord,
			ResourceID:   "rec-1",
		})
		s.Require().NoError(err)
	}

	entries, err := s.svc.ListByResource(s.ctx(), s.clinicID, audit.ResourceMedicalRecord, "rec-1", 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.True(entries[0].CreatedAt.After(entries[1].CreatedAt))
	s.True(entries[1].CreatedAt.After(entries[2].CreatedAt))
}

func (s *AuditServiceSuite) TestListDefaultLimit() {
	for i := 0; i < 105; i++ {
		ctx := requestcontext.WithTime(context.Background(), s.now.Add(time.Duration(i)*time.Second))
		_, err := s.svc.Record(ctx, s.clinicID, audit.Actor{ID: s.userID}, audit.Event{
			Action:       audit.ActionView,
			ResourceType: audit.ResourcePatient,
			ResourceID:   "patient-1",
		})
		s.Require().NoError(err)
	}

	entries, err := s.svc.ListByUser(s.ctx(), s.clinicID, s.userID, 0)
	s.Require().NoError(err)
	s.Len(entries, 100)

	entries, err = s.svc.ListByUser(s.ctx(), s.clinicID, s.userID, -5)
	s.Require().NoError(err)
	s.Len(entries, 100)

	entries, err = s.svc.ListByUser(s.ctx(), s.clinicID, s.userID, 3)
	s.Require().NoError(err)
	s.Len(entries, 3)
}

func (s *AuditServiceSuite) TestListScopedByClinic() {
	_, err := s.svc.Record(s.ctx(), s.clinicID, audit.Actor{ID: s.userID}, audit.Event{
		Action:       audit.ActionView,
		ResourceType: audit.ResourcePatient,
		ResourceID:   "patient-1",
	})
	s.Require().NoError(err)

	entries, err := s.svc.ListByUser(s.ctx(), id.ClinicID(uuid.New()), s.userID, 0)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *AuditServiceSuite) TestEmptyResultIsNotAnError() {
	entries, err := s.svc.ListByResource(s.ctx(), s.clinicID, audit.ResourcePatient, "missing", 0)
	s.Require().NoError(err)
	s.Empty(entries)
}
