// Package domain holds shared domain primitives: typed identifiers and
// closed enumerations that are validated at parse time.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ClinicID identifies a tenant. Every record and query is scoped to exactly
// one clinic; there is no cross-clinic read path.
type ClinicID uuid.UUID

// UserID identifies a data subject or operator within a clinic.
type UserID uuid.UUID

// ParseClinicID validates and returns a ClinicID.
func ParseClinicID(s string) (ClinicID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ClinicID{}, fmt.Errorf("invalid clinic id: %w", err)
	}
	return ClinicID(u), nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("invalid user id: %w", err)
	}
	return UserID(u), nil
}

func (c ClinicID) String() string { return uuid.UUID(c).String() }
func (c ClinicID) IsNil() bool    { return uuid.UUID(c) == uuid.Nil }

func (u UserID) String() string { return uuid.UUID(u).String() }
func (u UserID) IsNil() bool    { return uuid.UUID(u) == uuid.Nil }
