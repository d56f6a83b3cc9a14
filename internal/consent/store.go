package consent

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Store persists consent records. FindLatest returns the most recent record
// for the (user, purpose) pair regardless of status, or sentinel.ErrNotFound;
// a newer withdrawal must shadow an older grant. ListByUser returns newest
// createdAt first. UpdateStatus flips one record in place: status, the
// matching grantedAt/withdrawnAt timestamp, and updatedAt.
type Store interface {
	Save(ctx context.Context, record Record) error
	GetByID(ctx context.Context, clinicID id.ClinicID, recordID uuid.UUID) (Record, error)
	ListByUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID) ([]Record, error)
	FindLatest(ctx context.Context, clinicID id.ClinicID, userID id.UserID, purpose Purpose) (Record, error)
	UpdateStatus(ctx context.Context, clinicID id.ClinicID, recordID uuid.UUID, status Status, at time.Time) error
}
