// Package consent represents what a subject has and has not agreed to, and
// answers the one question downstream features rely on: is this processing
// purpose currently authorized for this subject.
package consent

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Purpose labels why personal data is processed. Purpose binding allows
// selective withdrawal without affecting other flows.
type Purpose string

const (
	PurposeHealthcareProvision Purpose = "healthcare_provision"
	PurposeLegalObligation     Purpose = "legal_obligation"
	PurposeVitalInterests      Purpose = "vital_interests"
	PurposeLegitimateInterest  Purpose = "legitimate_interest"
	PurposeConsentBased        Purpose = "consent_based"
	PurposeMarketing           Purpose = "marketing"
	PurposeAnalytics           Purpose = "analytics"
	PurposeResearch            Purpose = "research"
)

var validPurposes = map[Purpose]struct{}{
	PurposeHealthcareProvision: {}, PurposeLegalObligation: {},
	PurposeVitalInterests: {}, PurposeLegitimateInterest: {},
	PurposeConsentBased: {}, PurposeMarketing: {},
	PurposeAnalytics: {}, PurposeResearch: {},
}

// ParsePurpose validates and returns a Purpose.
func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(s)
	if _, ok := validPurposes[p]; !ok {
		return "", fmt.Errorf("unknown consent purpose: %q", s)
	}
	return p, nil
}

func (p Purpose) String() string { return string(p) }

// RequiredPurposes are mandatory for basic service operation. The ledger
// only exposes the per-purpose validity primitive; aggregating "has accepted
// everything required" stays caller-side, built on IsValid.
var RequiredPurposes = []Purpose{
	PurposeHealthcareProvision,
	PurposeLegalObligation,
}

// DataCategory classifies the personal data a consent covers.
type DataCategory string

const (
	CategoryIdentification DataCategory = "identification"
	CategoryContact        DataCategory = "contact"
	CategoryHealth         DataCategory = "health"
	CategoryFinancial      DataCategory = "financial"
	CategoryBehavioral     DataCategory = "behavioral"
)

var validCategories = map[DataCategory]struct{}{
	CategoryIdentification: {}, CategoryContact: {}, CategoryHealth: {},
	CategoryFinancial: {}, CategoryBehavioral: {},
}

// ParseDataCategory validates and returns a DataCategory.
func ParseDataCategory(s string) (DataCategory, error) {
	c := DataCategory(s)
	if _, ok := validCategories[c]; !ok {
		return "", fmt.Errorf("unknown data category: %q", s)
	}
	return c, nil
}

func (c DataCategory) String() string { return string(c) }

// Status of a consent record.
type Status string

const (
	StatusGranted   Status = "granted"
	StatusWithdrawn Status = "withdrawn"
)

// ParseStatus validates and returns a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if st != StatusGranted && st != StatusWithdrawn {
		return "", fmt.Errorf("unknown consent status: %q", s)
	}
	return st, nil
}

func (s Status) String() string { return string(s) }

// DefaultVersion is the consent-text version assumed when the caller does
// not name one.
const DefaultVersion = "1.0.0"

// Record is one discrete grant-or-withdraw event for a (user, purpose) pair,
// not a mutable current-state cell. Granting after withdrawing appends a new
// record; validity is derived from the most recent granted record.
type Record struct {
	ID       uuid.UUID
	ClinicID id.ClinicID
	UserID   id.UserID

	Purpose        Purpose
	DataCategories []DataCategory
	Status         Status

	// Version tags the consent text the subject agreed to.
	Version string

	IPAddress string
	UserAgent string

	GrantedAt   *time.Time
	WithdrawnAt *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidAt reports whether this record authorizes its purpose at the given
// instant: status granted and not past the optional expiry.
func (r Record) ValidAt(now time.Time) bool {
	if r.Status != StatusGranted {
		return false
	}
	if r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
		return false
	}
	return true
}
