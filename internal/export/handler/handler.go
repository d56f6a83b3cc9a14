// Package handler exposes the export request tracker over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"custodia/internal/consent"
	"custodia/internal/export"
	"custodia/internal/export/service"
	"custodia/internal/platform/middleware"
	"custodia/internal/transport/http/shared"
	"custodia/pkg/requestcontext"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	platformstrings "custodia/pkg/platform/strings"
)

//go:generate mockgen -source=handler.go -destination=mocks/service_mock.go -package=mocks

// Service defines the export operations the handler needs.
type Service interface {
	Create(ctx context.Context, clinicID id.ClinicID, userID id.UserID, cr service.CreateRequest) (uuid.UUID, error)
	GetByID(ctx context.Context, clinicID id.ClinicID, requestID uuid.UUID) (*export.Request, error)
	ListForUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID) ([]export.Request, error)
	SetStatus(ctx context.Context, clinicID id.ClinicID, requestID uuid.UUID, status export.Status, update service.StatusUpdate) error
}

// Handler handles export request endpoints.
type Handler struct {
	logger  *slog.Logger
	exports Service
}

func New(exports Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, exports: exports}
}

// Register mounts the export routes. Auth middleware is applied by the
// router; the status route is operator-only.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/exports", h.handleCreate)
	r.Get("/v1/exports", h.handleList)
	r.Get("/v1/exports/{id}", h.handleGet)
	r.With(middleware.RequireOperator(h.logger)).
		Patch("/v1/exports/{id}/status", h.handleSetStatus)
}

type createRequest struct {
	Type           string   `json:"type"`
	DataCategories []string `json:"dataCategories"`
	Format         string   `json:"format"`
	Reason         string   `json:"reason,omitempty"`
}

type createResponse struct {
	ID string `json:"id"`
}

type exportResponse struct {
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	DataCategories    []string   `json:"dataCategories"`
	Format            string     `json:"format"`
	Reason            string     `json:"reason,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	ErrorMessage      string     `json:"errorMessage,omitempty"`
	DownloadURL       string     `json:"downloadUrl,omitempty"`
	DownloadExpiresAt *time.Time `json:"downloadExpiresAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

type setStatusRequest struct {
	Status       string `json:"status"`
	DownloadURL  string `json:"downloadUrl,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	reqType, err := export.ParseType(req.Type)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}
	normalised := platformstrings.DedupeAndTrimLower(req.DataCategories)
	categories := make([]consent.DataCategory, 0, len(normalised))
	for _, raw := range normalised {
		c, err := consent.ParseDataCategory(raw)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
			return
		}
		categories = append(categories, c)
	}

	requestID, err := h.exports.Create(ctx, requestcontext.ClinicID(ctx), requestcontext.UserID(ctx), service.CreateRequest{
		Type:           reqType,
		DataCategories: categories,
		Format:         format,
		Reason:         req.Reason,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create export request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, createResponse{ID: requestID.String()})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid export request id"))
		return
	}

	req, err := h.exports.GetByID(ctx, requestcontext.ClinicID(ctx), requestID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load export request",
			"request_id", requestcontext.RequestID(ctx),
			"export_id", requestID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	if req == nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "export request not found"))
		return
	}
	// Subjects may only see their own requests; operators see all.
	if !middleware.IsOperator(ctx) && req.UserID != requestcontext.UserID(ctx) {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "export request not found"))
		return
	}

	shared.WriteJSON(w, http.StatusOK, toExportResponse(*req, requestcontext.Now(ctx)))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requests, err := h.exports.ListForUser(ctx, requestcontext.ClinicID(ctx), requestcontext.UserID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list export requests",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	now := requestcontext.Now(ctx)
	out := make([]exportResponse, len(requests))
	for i, req := range requests {
		out[i] = toExportResponse(req, now)
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid export request id"))
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	status, err := export.ParseStatus(req.Status)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}

	err = h.exports.SetStatus(ctx, requestcontext.ClinicID(ctx), requestID, status, service.StatusUpdate{
		DownloadURL:  req.DownloadURL,
		ErrorMessage: req.ErrorMessage,
		Notes:        req.Notes,
	})
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) && !dErrors.Is(err, dErrors.CodeInvalidState) {
			h.logger.ErrorContext(ctx, "failed to transition export request",
				"request_id", requestcontext.RequestID(ctx),
				"export_id", requestID.String(),
				"status", status.String(),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toExportResponse(req export.Request, now time.Time) exportResponse {
	categories := make([]string, len(req.DataCategories))
	for i, c := range req.DataCategories {
		categories[i] = string(c)
	}
	return exportResponse{
		ID:                req.ID.String(),
		Type:              req.Type.String(),
		Status:            req.EffectiveStatus(now).String(),
		DataCategories:    categories,
		Format:            req.Format.String(),
		Reason:            req.Reason,
		Notes:             req.Notes,
		ErrorMessage:      req.ErrorMessage,
		DownloadURL:       req.DownloadURL,
		DownloadExpiresAt: req.DownloadExpiresAt,
		CompletedAt:       req.CompletedAt,
		CreatedAt:         req.CreatedAt,
	}
}
