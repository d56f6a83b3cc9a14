package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "custodia/pkg/domain"
)

func TestParseClinicID(t *testing.T) {
	raw := uuid.NewString()

	clinicID, err := id.ParseClinicID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, clinicID.String())
	assert.False(t, clinicID.IsNil())

	_, err = id.ParseClinicID("not-a-uuid")
	assert.ErrorContains(t, err, "invalid clinic id")
}

func TestParseUserID(t *testing.T) {
	raw := uuid.NewString()

	userID, err := id.ParseUserID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, userID.String())
	assert.False(t, userID.IsNil())

	_, err = id.ParseUserID("")
	assert.ErrorContains(t, err, "invalid user id")
}

func TestZeroValueIsNil(t *testing.T) {
	assert.True(t, id.ClinicID{}.IsNil())
	assert.True(t, id.UserID{}.IsNil())
}
