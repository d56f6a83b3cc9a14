//go:build integration

package consent_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/consent"
	"custodia/pkg/testutil/containers"

	id "custodia/pkg/domain"
)

func TestValidityCacheRoundTrip(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	cache := consent.NewValidityCache(rc.Client, time.Minute)

	ctx := context.Background()
	clinicID := id.ClinicID(uuid.New())
	userID := id.UserID(uuid.New())

	_, found := cache.Get(ctx, clinicID, userID, consent.PurposeMarketing)
	assert.False(t, found)

	cache.Set(ctx, clinicID, userID, consent.PurposeMarketing, true)
	valid, found := cache.Get(ctx, clinicID, userID, consent.PurposeMarketing)
	require.True(t, found)
	assert.True(t, valid)

	cache.Set(ctx, clinicID, userID, consent.PurposeAnalytics, false)
	valid, found = cache.Get(ctx, clinicID, userID, consent.PurposeAnalytics)
	require.True(t, found)
	assert.False(t, valid)

	// Purposes are cached independently.
	valid, found = cache.Get(ctx, clinicID, userID, consent.PurposeMarketing)
	require.True(t, found)
	assert.True(t, valid)
}

func TestValidityCacheInvalidate(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	cache := consent.NewValidityCache(rc.Client, time.Minute)

	ctx := context.Background()
	clinicID := id.ClinicID(uuid.New())
	userID := id.UserID(uuid.New())

	cache.Set(ctx, clinicID, userID, consent.PurposeMarketing, true)
	cache.Invalidate(ctx, clinicID, userID, consent.PurposeMarketing)

	_, found := cache.Get(ctx, clinicID, userID, consent.PurposeMarketing)
	assert.False(t, found)
}

func TestValidityCacheTTLExpires(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	cache := consent.NewValidityCache(rc.Client, time.Second)

	ctx := context.Background()
	clinicID := id.ClinicID(uuid.New())
	userID := id.UserID(uuid.New())

	cache.Set(ctx, clinicID, userID, consent.PurposeMarketing, true)

	require.Eventually(t, func() bool {
		_, found := cache.Get(ctx, clinicID, userID, consent.PurposeMarketing)
		return !found
	}, 5*time.Second, 200*time.Millisecond)
}
