package export_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"custodia/internal/export"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to export.Status
		want     bool
	}{
		{export.StatusPending, export.StatusProcessing, true},
		{export.StatusPending, export.StatusCompleted, true},
		{export.StatusPending, export.StatusFailed, true},
		{export.StatusPending, export.StatusExpired, false},
		{export.StatusProcessing, export.StatusCompleted, true},
		{export.StatusProcessing, export.StatusFailed, true},
		{export.StatusProcessing, export.StatusPending, false},
		{export.StatusCompleted, export.StatusExpired, true},
		{export.StatusCompleted, export.StatusProcessing, false},
		{export.StatusFailed, export.StatusPending, false},
		{export.StatusFailed, export.StatusCompleted, false},
		{export.StatusExpired, export.StatusCompleted, false},
		{export.StatusExpired, export.StatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, export.CanTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.Equal(t, export.StatusExpired,
		export.Request{Status: export.StatusCompleted, DownloadExpiresAt: &past}.EffectiveStatus(now))
	assert.Equal(t, export.StatusCompleted,
		export.Request{Status: export.StatusCompleted, DownloadExpiresAt: &future}.EffectiveStatus(now))
	assert.Equal(t, export.StatusCompleted,
		export.Request{Status: export.StatusCompleted}.EffectiveStatus(now))
	// Only completed requests derive expiry from the download window.
	assert.Equal(t, export.StatusProcessing,
		export.Request{Status: export.StatusProcessing, DownloadExpiresAt: &past}.EffectiveStatus(now))
}

func TestParseType(t *testing.T) {
	for _, raw := range []string{"access", "portability", "deletion"} {
		parsed, err := export.ParseType(raw)
		assert.NoError(t, err)
		assert.Equal(t, raw, parsed.String())
	}

	_, err := export.ParseType("erasure")
	assert.ErrorContains(t, err, "unknown export request type")
}

func TestParseFormat(t *testing.T) {
	for _, raw := range []string{"json", "pdf", "csv"} {
		parsed, err := export.ParseFormat(raw)
		assert.NoError(t, err)
		assert.Equal(t, raw, parsed.String())
	}

	_, err := export.ParseFormat("xml")
	assert.ErrorContains(t, err, "unknown export format")
}

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"pending", "processing", "completed", "failed", "expired"} {
		parsed, err := export.ParseStatus(raw)
		assert.NoError(t, err)
		assert.Equal(t, raw, parsed.String())
	}

	_, err := export.ParseStatus("done")
	assert.ErrorContains(t, err, "unknown export status")
}
