package http

import (
	"net/http"

	"mentorbook-backend/internal/domain"
)

type amountRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.svc.Ledger.GetWallet(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// readAmountWithKey decodes an amount body and requires an idempotency key.
func readAmountWithKey(w http.ResponseWriter, r *http.Request) (int64, string, error) {
	key, err := idempotencyKey(r)
	if err != nil {
		return 0, "", err
	}
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return 0, "", err
	}
	if req.AmountCents <= 0 {
		return 0, "", domain.NewValidationError("amount_cents must be positive")
	}
	return req.AmountCents, key, nil
}

func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	amount, key, err := readAmountWithKey(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := h.svc.Ledger.TopUp(r.Context(), UserIDFromContext(r.Context()), amount, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	amount, key, err := readAmountWithKey(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := h.svc.Ledger.Withdraw(r.Context(), UserIDFromContext(r.Context()), amount, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, total, err := h.svc.Ledger.GetTransactions(r.Context(), UserIDFromContext(r.Context()), page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.LedgerEntry]{Items: nonNil(items), Total: total, Page: page, PageSize: size})
}

func (h *Handler) LockWallet(w http.ResponseWriter, r *http.Request) {
	h.setWalletLocked(w, r, true)
}

func (h *Handler) UnlockWallet(w http.ResponseWriter, r *http.Request) {
	h.setWalletLocked(w, r, false)
}

func (h *Handler) setWalletLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	wallet, err := h.svc.Ledger.SetWalletLocked(r.Context(), pathVar(r, "ownerID"), locked)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}
