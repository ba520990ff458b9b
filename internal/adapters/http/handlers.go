package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mercator-labs/listing-sync/internal/application"
	"github.com/mercator-labs/listing-sync/internal/domain"
)

type Handler struct {
	service *application.Service
}

func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

// credentialFromRequest binds the opaque marketplace token from the
// Authorization header to the account in the path.
func credentialFromRequest(r *http.Request) (domain.Credential, error) {
	account := chi.URLParam(r, "account")
	if account == "" {
		return domain.Credential{}, domain.ErrInvalidInput
	}
	const prefix = "Token "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return domain.Credential{}, domain.ErrUnauthorized
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return domain.Credential{}, domain.ErrUnauthorized
	}
	return domain.Credential{Account: account, Token: token}, nil
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	epoch, err := h.service.RefreshListings(r.Context(), account)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusAccepted, map[string]int64{"epoch": epoch})
}

func (h *Handler) getListings(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	listings, err := h.service.GetListings(r.Context(), account)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"listings": listings})
}

func (h *Handler) getLimits(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	limits, err := h.service.GetLimits(r.Context(), account)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, limits)
}

func (h *Handler) getInventory(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	snapshot, err := h.service.GetInventory(r.Context(), account)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, snapshot)
}

func (h *Handler) createListings(w http.ResponseWriter, r *http.Request) {
	cred, err := credentialFromRequest(r)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	var body struct {
		Listings []domain.DesiredListing `json:"listings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}
	result, err := h.service.CreateListings(r.Context(), cred, body.Listings)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) updateListings(w http.ResponseWriter, r *http.Request) {
	cred, err := credentialFromRequest(r)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	var body struct {
		Listings []domain.DesiredListing `json:"listings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}
	result, err := h.service.UpdateListings(r.Context(), cred, body.Listings)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) deleteListings(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, h.service.DeleteListings)
}

func (h *Handler) deleteArchivedListings(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, h.service.DeleteArchivedListings)
}

func (h *Handler) deleteWith(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.Credential, []string) (application.DeleteResult, error)) {
	cred, err := credentialFromRequest(r)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}
	result, err := fn(r.Context(), cred, body.IDs)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) deleteAllListings(w http.ResponseWriter, r *http.Request) {
	cred, err := credentialFromRequest(r)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	total, err := h.service.DeleteAllListings(r.Context(), cred)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]int{"deleted": total})
}

func (h *Handler) markDoNotDelete(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}
	if err := h.service.MarkDoNotDelete(r.Context(), account, body.IDs); err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]int{"marked": len(body.IDs)})
}

func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, domain.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "RATE_LIMITED", "too many pending requests, try later"
	case errors.Is(err, domain.ErrDependencyUnavailable):
		return http.StatusBadGateway, "DEPENDENCY_UNAVAILABLE", err.Error()
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

func writeSuccess(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
