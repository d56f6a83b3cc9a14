package audit

import (
	"context"

	id "custodia/pkg/domain"
)

// Store persists audit entries. Append is the only write; entries are never
// mutated. List queries return newest-first and an empty slice when nothing
// matches - absence is not an error.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByResource(ctx context.Context, clinicID id.ClinicID, resourceType ResourceType, resourceID string, limit int) ([]Entry, error)
	ListByUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID, limit int) ([]Entry, error)
	ListByAction(ctx context.Context, clinicID id.ClinicID, action Action, limit int) ([]Entry, error)
}
