package http

import (
	"net/http"
	"strings"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/service"
)

type paymentWebhook struct {
	BookingID   string `json:"booking_id"`
	PaymentRef  string `json:"payment_ref"`
	Status      string `json:"status"` // "succeeded" or "failed"
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason,omitempty"`
}

type payoutWebhook struct {
	PayoutID    string `json:"payout_id"`
	ExternalRef string `json:"external_ref"`
	Status      string `json:"status"` // "paid" or "failed"
	Reason      string `json:"reason,omitempty"`
}

func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhook
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	event := service.PaymentEvent{
		BookingID:   req.BookingID,
		PaymentRef:  req.PaymentRef,
		AmountCents: req.AmountCents,
		Reason:      req.Reason,
	}
	switch strings.ToLower(req.Status) {
	case "succeeded", "success", "paid":
		event.Succeeded = true
	case "failed", "failure":
	default:
		writeError(w, r, domain.NewValidationError("unknown payment status %q", req.Status))
		return
	}
	if event.BookingID == "" || event.PaymentRef == "" {
		writeError(w, r, domain.NewValidationError("booking_id and payment_ref are required"))
		return
	}

	logger.InfoContext(r.Context(), "Payment webhook received", "bookingID", event.BookingID, "succeeded", event.Succeeded)
	b, err := h.svc.Bookings.HandlePayment(r.Context(), event)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) PayoutWebhook(w http.ResponseWriter, r *http.Request) {
	var req payoutWebhook
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	outcome := domain.PayoutOutcome(strings.ToLower(req.Status))
	if outcome != domain.PayoutOutcomePaid && outcome != domain.PayoutOutcomeFailed {
		writeError(w, r, domain.NewValidationError("unknown payout status %q", req.Status))
		return
	}
	if req.PayoutID == "" {
		writeError(w, r, domain.NewValidationError("payout_id is required"))
		return
	}

	logger.InfoContext(r.Context(), "Payout webhook received", "payoutID", req.PayoutID, "outcome", outcome)
	p, err := h.svc.Payouts.HandleWebhook(r.Context(), service.PayoutEvent{
		PayoutID:    req.PayoutID,
		ExternalRef: req.ExternalRef,
		Outcome:     outcome,
		Reason:      req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
