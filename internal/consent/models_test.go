package consent_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"custodia/internal/consent"
)

func TestParsePurpose(t *testing.T) {
	parsed, err := consent.ParsePurpose("healthcare_provision")
	assert.NoError(t, err)
	assert.Equal(t, consent.PurposeHealthcareProvision, parsed)

	_, err = consent.ParsePurpose("advertising")
	assert.ErrorContains(t, err, "unknown consent purpose")

	// Values are case sensitive; normalisation happens at the boundary.
	_, err = consent.ParsePurpose("Marketing")
	assert.Error(t, err)
}

func TestParseDataCategory(t *testing.T) {
	parsed, err := consent.ParseDataCategory("health")
	assert.NoError(t, err)
	assert.Equal(t, consent.CategoryHealth, parsed)

	_, err = consent.ParseDataCategory("biometric")
	assert.ErrorContains(t, err, "unknown data category")
}

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"granted", "withdrawn"} {
		parsed, err := consent.ParseStatus(raw)
		assert.NoError(t, err)
		assert.Equal(t, raw, parsed.String())
	}

	_, err := consent.ParseStatus("revoked")
	assert.ErrorContains(t, err, "unknown consent status")
}

func TestRecordValidAt(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, consent.Record{Status: consent.StatusGranted}.ValidAt(now))
	assert.True(t, consent.Record{Status: consent.StatusGranted, ExpiresAt: &future}.ValidAt(now))
	assert.False(t, consent.Record{Status: consent.StatusGranted, ExpiresAt: &past}.ValidAt(now))
	assert.False(t, consent.Record{Status: consent.StatusWithdrawn}.ValidAt(now))
	assert.False(t, consent.Record{Status: consent.StatusWithdrawn, ExpiresAt: &future}.ValidAt(now))
}
