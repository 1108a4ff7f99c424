package http

import (
	"net/http"

	"mentorbook-backend/internal/domain"
)

type createBookingRequest struct {
	OccurrenceID string `json:"occurrence_id"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OccurrenceID == "" {
		writeError(w, r, domain.NewValidationError("occurrence_id is required"))
		return
	}
	b, err := h.svc.Bookings.CreateBooking(r.Context(), UserIDFromContext(r.Context()), req.OccurrenceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Bookings.GetBooking(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var asOwner bool
	switch q.Get("role") {
	case "", "requester":
	case "owner":
		asOwner = true
	default:
		writeError(w, r, domain.NewValidationError("role must be requester or owner"))
		return
	}
	status := domain.BookingStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, r, domain.NewValidationError("unknown booking status %q", status))
		return
	}
	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, total, err := h.svc.Bookings.ListBookings(r.Context(), UserIDFromContext(r.Context()), asOwner, status, page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Booking]{Items: nonNil(items), Total: total, Page: page, PageSize: size})
}

// optionalReason reads {"reason": ...} when a body was sent.
func optionalReason(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.ContentLength == 0 {
		return "", nil
	}
	var req reasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	return req.Reason, nil
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	reason, err := optionalReason(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.svc.Bookings.CancelBooking(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Bookings.AcceptBooking(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) DeclineBooking(w http.ResponseWriter, r *http.Request) {
	reason, err := optionalReason(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.svc.Bookings.DeclineBooking(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Bookings.CompleteBooking(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Bookings.RecordAttendance(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
