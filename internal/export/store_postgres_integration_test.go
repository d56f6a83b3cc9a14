//go:build integration

package export_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"custodia/internal/consent"
	"custodia/internal/export"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/testutil/containers"

	id "custodia/pkg/domain"
)

type PostgresExportStoreSuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	store    *export.PostgresStore
	clinicID id.ClinicID
	userID   id.UserID
	now      time.Time
}

func TestPostgresExportStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresExportStoreSuite))
}

func (s *PostgresExportStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = export.NewPostgres(s.pg.DB)
}

func (s *PostgresExportStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(context.Background()))
	s.clinicID = id.ClinicID(uuid.New())
	s.userID = id.UserID(uuid.New())
	s.now = time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC)
}

func (s *PostgresExportStoreSuite) request(at time.Time) export.Request {
	req := export.Request{
		ID:             uuid.New(),
		ClinicID:       s.clinicID,
		UserID:         s.userID,
		Type:           export.TypePortability,
		Status:         export.StatusPending,
		DataCategories: []consent.DataCategory{consent.CategoryHealth, consent.CategoryContact},
		Format:         export.FormatJSON,
		Reason:         "moving abroad",
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	s.Require().NoError(s.store.Save(context.Background(), req))
	return req
}

func (s *PostgresExportStoreSuite) TestSaveAndGetByID() {
	saved := s.request(s.now)

	got, err := s.store.GetByID(context.Background(), s.clinicID, saved.ID)
	s.Require().NoError(err)
	s.Equal(saved.ID, got.ID)
	s.Equal(export.TypePortability, got.Type)
	s.Equal(export.StatusPending, got.Status)
	s.Equal([]consent.DataCategory{consent.CategoryHealth, consent.CategoryContact}, got.DataCategories)
	s.Equal("moving abroad", got.Reason)
	s.Nil(got.CompletedAt)
	s.Nil(got.DownloadExpiresAt)
}

func (s *PostgresExportStoreSuite) TestGetByIDScopedByClinic() {
	saved := s.request(s.now)

	_, err := s.store.GetByID(context.Background(), id.ClinicID(uuid.New()), saved.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresExportStoreSuite) TestListByUserNewestFirst() {
	first := s.request(s.now)
	second := s.request(s.now.Add(time.Minute))

	requests, err := s.store.ListByUser(context.Background(), s.clinicID, s.userID)
	s.Require().NoError(err)
	s.Require().Len(requests, 2)
	s.Equal(second.ID, requests[0].ID)
	s.Equal(first.ID, requests[1].ID)
}

func (s *PostgresExportStoreSuite) TestUpdate() {
	saved := s.request(s.now)

	completedAt := s.now.Add(2 * time.Hour)
	expiry := completedAt.Add(24 * time.Hour)
	saved.Status = export.StatusCompleted
	saved.DownloadURL = "https://exports.example.com/abc"
	saved.CompletedAt = &completedAt
	saved.DownloadExpiresAt = &expiry
	saved.Notes = "fulfilled manually"
	saved.UpdatedAt = completedAt
	s.Require().NoError(s.store.Update(context.Background(), saved))

	got, err := s.store.GetByID(context.Background(), s.clinicID, saved.ID)
	s.Require().NoError(err)
	s.Equal(export.StatusCompleted, got.Status)
	s.Equal("https://exports.example.com/abc", got.DownloadURL)
	s.Equal("fulfilled manually", got.Notes)
	s.Require().NotNil(got.CompletedAt)
	s.True(completedAt.Equal(*got.CompletedAt))
	s.Require().NotNil(got.DownloadExpiresAt)
	s.True(expiry.Equal(*got.DownloadExpiresAt))
}

func (s *PostgresExportStoreSuite) TestUpdateUnknownRequest() {
	req := s.request(s.now)
	req.ID = uuid.New()
	err := s.store.Update(context.Background(), req)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
