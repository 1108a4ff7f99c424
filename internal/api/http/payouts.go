package http

import (
	"net/http"

	"mentorbook-backend/internal/domain"
)

func (h *Handler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	amount, key, err := readAmountWithKey(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.Payouts.CreatePayout(r.Context(), UserIDFromContext(r.Context()), amount, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Payouts.ListPayouts(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.PayoutRequest]{Items: nonNil(items), Total: int32(len(items))})
}

func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Payouts.GetPayout(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Payouts.ApprovePayout(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) RetryPayout(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Payouts.RetryPayout(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
