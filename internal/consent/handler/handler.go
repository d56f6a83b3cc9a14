// Package handler exposes the consent ledger over HTTP.
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
	"custodia/internal/consent/service"
	"custodia/internal/platform/middleware"
	"custodia/internal/transport/http/shared"
	"custodia/pkg/requestcontext"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	platformstrings "custodia/pkg/platform/strings"
)

//go:generate mockgen -source=handler.go -destination=mocks/service_mock.go -package=mocks

// Service defines the consent operations the handler needs.
type Service interface {
	Record(ctx context.Context, clinicID id.ClinicID, userID id.UserID, d service.Decision) (uuid.UUID, error)
	ListForUser(ctx context.Context, clinicID id.ClinicID, userID id.UserID) ([]consent.Record, error)
	SetStatus(ctx context.Context, clinicID id.ClinicID, recordID uuid.UUID, status consent.Status) error
	IsValid(ctx context.Context, clinicID id.ClinicID, userID id.UserID, purpose consent.Purpose) (bool, error)
}

// Handler handles consent endpoints.
type Handler struct {
	logger  *slog.Logger
	consent Service
}

func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, consent: consent}
}

// Register mounts the consent routes. Auth middleware is applied by the
// router; operator gating for the status route happens here.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/consents", h.handleRecord)
	r.Get("/v1/consents", h.handleList)
	r.Get("/v1/consents/validity", h.handleValidity)
	r.With(middleware.RequireOperator(h.logger)).
		Patch("/v1/consents/{id}/status", h.handleSetStatus)
}

type recordRequest struct {
	Purpose        string     `json:"purpose"`
	DataCategories []string   `json:"dataCategories"`
	Status         string     `json:"status"`
	Version        string     `json:"version,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

type recordResponse struct {
	ID string `json:"id"`
}

type consentResponse struct {
	ID             string     `json:"id"`
	Purpose        string     `json:"purpose"`
	DataCategories []string   `json:"dataCategories"`
	Status         string     `json:"status"`
	Version        string     `json:"version"`
	GrantedAt      *time.Time `json:"grantedAt,omitempty"`
	WithdrawnAt    *time.Time `json:"withdrawnAt,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type validityResponse struct {
	Purpose string `json:"purpose"`
	Valid   bool   `json:"valid"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	purpose, err := consent.ParsePurpose(req.Purpose)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}
	status, err := consent.ParseStatus(req.Status)
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

	recordID, err := h.consent.Record(ctx, requestcontext.ClinicID(ctx), requestcontext.UserID(ctx), service.Decision{
		Purpose:        purpose,
		DataCategories: categories,
		Status:         status,
		Version:        req.Version,
		ExpiresAt:      req.ExpiresAt,
		IPAddress:      requestcontext.ClientIP(ctx),
		UserAgent:      requestcontext.UserAgent(ctx),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record consent decision",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, recordResponse{ID: recordID.String()})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.consent.ListForUser(ctx, requestcontext.ClinicID(ctx), requestcontext.UserID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list consent records",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	out := make([]consentResponse, len(records))
	for i, rec := range records {
		out[i] = toConsentResponse(rec)
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleValidity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	purpose, err := consent.ParsePurpose(r.URL.Query().Get("purpose"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}

	valid, err := h.consent.IsValid(ctx, requestcontext.ClinicID(ctx), requestcontext.UserID(ctx), purpose)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to check consent validity",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, validityResponse{Purpose: purpose.String(), Valid: valid})
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid consent record id"))
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	status, err := consent.ParseStatus(req.Status)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}

	if err := h.consent.SetStatus(ctx, requestcontext.ClinicID(ctx), recordID, status); err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "failed to update consent status",
				"request_id", requestcontext.RequestID(ctx),
				"consent_id", recordID.String(),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toConsentResponse(rec consent.Record) consentResponse {
	categories := make([]string, len(rec.DataCategories))
	for i, c := range rec.DataCategories {
		categories[i] = string(c)
	}
	return consentResponse{
		ID:             rec.ID.String(),
		Purpose:        rec.Purpose.String(),
		DataCategories: categories,
		Status:         rec.Status.String(),
		Version:        rec.Version,
		GrantedAt:      rec.GrantedAt,
		WithdrawnAt:    rec.WithdrawnAt,
		ExpiresAt:      rec.ExpiresAt,
		CreatedAt:      rec.CreatedAt,
	}
}
