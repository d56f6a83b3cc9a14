package export

import (
	"context"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Store persists export requests. GetByID returns sentinel.ErrNotFound for an
// unknown id; ListByUser returns newest createdAt first. Update replaces the
// mutable fields of an existing request wholesale; the service owns
// transition validation.
type Store interface {
	Save(ctx context.Context, req Request) error
	GetByID(ctx context.Context, clinicID id.ClinicID, requestID uuid.UUID) (Request, error)
	ListByUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID) ([]Request, error)
	Update(ctx context.Context, req Request) error
}
