// Package audit is the append-only record of who did what to which resource,
// when. Entries are immutable once written; read paths only filter and sort.
// The consent ledger and the export tracker depend on it; it depends on
// neither.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Action enumerates the auditable actions. Unknown values are rejected at
// the boundary rather than persisted.
type Action string

const (
	ActionView            Action = "view"
	ActionCreate          Action = "create"
	ActionUpdate          Action = "update"
	ActionDelete          Action = "delete"
	ActionLogin           Action = "login"
	ActionLogout          Action = "logout"
	ActionConsentGrant    Action = "consent_grant"
	ActionConsentWithdraw Action = "consent_withdraw"
	ActionDataRequest     Action = "data_request"
)

var validActions = map[Action]struct{}{
	ActionView: {}, ActionCreate: {}, ActionUpdate: {}, ActionDelete: {},
	ActionLogin: {}, ActionLogout: {}, ActionConsentGrant: {},
	ActionConsentWithdraw: {}, ActionDataRequest: {},
}

// ParseAction validates and returns an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := validActions[a]; !ok {
		return "", fmt.Errorf("unknown audit action: %q", s)
	}
	return a, nil
}

func (a Action) String() string { return string(a) }

// ResourceType enumerates the resources an action can target.
type ResourceType string

const (
	ResourcePatient       ResourceType = "patient"
	ResourceMedicalRecord ResourceType = "medical_record"
	ResourceAppointment   ResourceType = "appointment"
	ResourceConsent       ResourceType = "consent"
	ResourceUser          ResourceType = "user"
)

var validResourceTypes = map[ResourceType]struct{}{
	ResourcePatient: {}, ResourceMedicalRecord: {}, ResourceAppointment: {},
	ResourceConsent: {}, ResourceUser: {},
}

// ParseResourceType validates and returns a ResourceType.
func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(s)
	if _, ok := validResourceTypes[rt]; !ok {
		return "", fmt.Errorf("unknown resource type: %q", s)
	}
	return rt, nil
}

func (r ResourceType) String() string { return string(r) }

// Actor identifies who performed an action. Name may be empty when unknown
// at call time.
type Actor struct {
	ID   id.UserID
	Name string
}

// Event is the caller-supplied part of an entry. All forensic fields are
// optional; an absent field degrades the entry, it never fails the call.
// IP address, location and session id are passed through verbatim - this
// layer never infers them. The user agent is the one exception: when the
// event leaves it empty it is captured opportunistically from the request
// context.
type Event struct {
	Action       Action
	ResourceType ResourceType
	ResourceID   string

	Details        map[string]string
	ChangedFields  []string
	PreviousValues map[string]any
	NewValues      map[string]any
	IPAddress      string
	UserAgent      string
	Location       string
	SessionID      string
}

// Entry is an immutable fact about one action taken in the system. Once
// written it is never updated or deleted by this subsystem.
type Entry struct {
	ID       uuid.UUID
	ClinicID id.ClinicID

	ActorID   id.UserID
	ActorName string

	Action       Action
	ResourceType ResourceType
	ResourceID   string

	Details        map[string]string
	ChangedFields  []string
	PreviousValues map[string]any
	NewValues      map[string]any
	IPAddress      string
	UserAgent      string
	Location       string
	SessionID      string

	// RequestID is a correlation id minted fresh for every recorded entry.
	RequestID string

	CreatedAt time.Time
}
