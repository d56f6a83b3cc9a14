package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "custodia/pkg/domain"
)

// ValidityCache fronts IsValid lookups with Redis. Cache failures are soft:
// a miss or an unreachable Redis falls through to the store, never failing
// the check. Every consent write invalidates the affected key.
type ValidityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewValidityCache(client *redis.Client, ttl time.Duration) *ValidityCache {
	return &ValidityCache{client: client, ttl: ttl}
}

func validityKey(clinicID id.ClinicID, userID id.UserID, purpose Purpose) string {
	return fmt.Sprintf("consent:valid:%s:%s:%s", clinicID, userID, purpose)
}

// Get returns (validity, found). Errors count as not found.
func (c *ValidityCache) Get(ctx context.Context, clinicID id.ClinicID, userID id.UserID, purpose Purpose) (bool, bool) {
	val, err := c.client.Get(ctx, validityKey(clinicID, userID, purpose)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// Set stores the validity answer with the configured TTL. Best effort.
func (c *ValidityCache) Set(ctx context.Context, clinicID id.ClinicID, userID id.UserID, purpose Purpose, valid bool) {
	val := "0"
	if valid {
		val = "1"
	}
	c.client.Set(ctx, validityKey(clinicID, userID, purpose), val, c.ttl)
}

// Invalidate drops the cached answer for the pair. Best effort.
func (c *ValidityCache) Invalidate(ctx context.Context, clinicID id.ClinicID, userID id.UserID, purpose Purpose) {
	c.client.Del(ctx, validityKey(clinicID, userID, purpose))
}
