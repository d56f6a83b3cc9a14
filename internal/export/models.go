// Package export tracks data-subject rights requests through their
// fulfillment lifecycle. The pipeline producing the export artifact is
// external; this subsystem only records and transitions state.
package export

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodia/internal/consent"

	id "custodia/pkg/domain"
)

// Type is the subject right being exercised.
type Type string

const (
	TypeAccess      Type = "access"
	TypePortability Type = "portability"
	TypeDeletion    Type = "deletion"
)

// ParseType validates and returns a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	switch t {
	case TypeAccess, TypePortability, TypeDeletion:
		return t, nil
	}
	return "", fmt.Errorf("unknown export request type: %q", s)
}

func (t Type) String() string { return string(t) }

// Format of the produced artifact.
type Format string

const (
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
	FormatCSV  Format = "csv"
)

// ParseFormat validates and returns a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(s)
	switch f {
	case FormatJSON, FormatPDF, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format: %q", s)
}

func (f Format) String() string { return string(f) }

// Status of a request. Expired is stored only when a status-driving process
// writes it explicitly; reads derive it from the download window otherwise.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// ParseStatus validates and returns a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown export status: %q", s)
}

func (s Status) String() string { return string(s) }

var allowedTransitions = map[Status]map[Status]struct{}{
	StatusPending:    {StatusProcessing: {}, StatusCompleted: {}, StatusFailed: {}},
	StatusProcessing: {StatusCompleted: {}, StatusFailed: {}},
	StatusCompleted:  {StatusExpired: {}},
	StatusFailed:     {},
	StatusExpired:    {},
}

// CanTransition reports whether from→to is a legal lifecycle step. A request
// never regresses from a terminal status; completed may only advance to
// expired.
func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Request is one data-subject rights request.
type Request struct {
	ID       uuid.UUID
	ClinicID id.ClinicID
	UserID   id.UserID

	Type           Type
	Status         Status
	DataCategories []consent.DataCategory
	Format         Format

	// Reason is free text supplied by the subject; Notes are operator-side.
	Reason string
	Notes  string

	// ErrorMessage is set only on failed requests.
	ErrorMessage string

	// Artifact fields are set only when the request completes with a URL.
	DownloadURL       string
	DownloadExpiresAt *time.Time
	CompletedAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveStatus renders the stored status, mapping completed requests whose
// download window has passed to expired. The stored field is never
// auto-transitioned; every read path presents status through this method.
func (r Request) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusCompleted && r.DownloadExpiresAt != nil && r.DownloadExpiresAt.Before(now) {
		return StatusExpired
	}
	return r.Status
}
