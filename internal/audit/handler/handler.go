// Package handler exposes operator-facing audit trail queries over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/audit"
	"custodia/internal/platform/middleware"
	"custodia/internal/transport/http/shared"
	"custodia/pkg/requestcontext"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
)

// Service defines the audit queries the handler needs.
type Service interface {
	ListByResource(ctx context.Context, clinicID id.ClinicID, resourceType audit.ResourceType, resourceID string, limit int) ([]audit.Entry, error)
	ListByUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID, limit int) ([]audit.Entry, error)
	ListByAction(ctx context.Context, clinicID id.ClinicID, action audit.Action, limit int) ([]audit.Entry, error)
}

// Handler handles audit query endpoints. There is no write endpoint; entries
// are only recorded through the consent and export services.
type Handler struct {
	logger *slog.Logger
	audit  Service
}

func New(audit Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, audit: audit}
}

// Register mounts the audit routes. All of them are operator-only.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/audit", func(r chi.Router) {
		r.Use(middleware.RequireOperator(h.logger))
		r.Get("/resources/{type}/{id}", h.handleByResource)
		r.Get("/users/{userID}", h.handleByUser)
		r.Get("/actions/{action}", h.handleByAction)
	})
}

type entryResponse struct {
	ID             string            `json:"id"`
	ActorID        string            `json:"actorId"`
	ActorName      string            `json:"actorName,omitempty"`
	Action         string            `json:"action"`
	ResourceType   string            `json:"resourceType"`
	ResourceID     string            `json:"resourceId"`
	Details        map[string]string `json:"details,omitempty"`
	ChangedFields  []string          `json:"changedFields,omitempty"`
	PreviousValues map[string]any    `json:"previousValues,omitempty"`
	NewValues      map[string]any    `json:"newValues,omitempty"`
	IPAddress      string            `json:"ipAddress,omitempty"`
	UserAgent      string            `json:"userAgent,omitempty"`
	Location       string            `json:"location,omitempty"`
	SessionID      string            `json:"sessionId,omitempty"`
	RequestID      string            `json:"requestId"`
	CreatedAt      time.Time         `json:"createdAt"`
}

func (h *Handler) handleByResource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resourceType, err := audit.ParseResourceType(chi.URLParam(r, "type"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}
	resourceID := chi.URLParam(r, "id")

	entries, err := h.audit.ListByResource(ctx, requestcontext.ClinicID(ctx), resourceType, resourceID, parseLimit(r))
	h.respond(w, r, entries, err)
}

func (h *Handler) handleByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}

	entries, err := h.audit.ListByUser(ctx, requestcontext.ClinicID(ctx), userID, parseLimit(r))
	h.respond(w, r, entries, err)
}

func (h *Handler) handleByAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	action, err := audit.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}

	entries, err := h.audit.ListByAction(ctx, requestcontext.ClinicID(ctx), action, parseLimit(r))
	h.respond(w, r, entries, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, entries []audit.Entry, err error) {
	ctx := r.Context()
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to query audit trail",
			"request_id", requestcontext.RequestID(ctx),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		out[i] = toEntryResponse(e)
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

// parseLimit reads the optional limit query parameter. Unparsable or missing
// values fall back to zero; the service substitutes its default.
func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}

func toEntryResponse(e audit.Entry) entryResponse {
	return entryResponse{
		ID:             e.ID.String(),
		ActorID:        e.ActorID.String(),
		ActorName:      e.ActorName,
		Action:         e.Action.String(),
		ResourceType:   e.ResourceType.String(),
		ResourceID:     e.ResourceID,
		Details:        e.Details,
		ChangedFields:  e.ChangedFields,
		PreviousValues: e.PreviousValues,
		NewValues:      e.NewValues,
		IPAddress:      e.IPAddress,
		UserAgent:      e.UserAgent,
		Location:       e.Location,
		SessionID:      e.SessionID,
		RequestID:      e.RequestID,
		CreatedAt:      e.CreatedAt,
	}
}
