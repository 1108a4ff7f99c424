package http

import (
	"net/http"

	"mentorbook-backend/internal/domain"
)

func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, total, err := h.svc.Notifications.GetNotifications(r.Context(), UserIDFromContext(r.Context()), page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Notification]{Items: nonNil(items), Total: total, Page: page, PageSize: size})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Notifications.MarkAsRead(r.Context(), UserIDFromContext(r.Context()), pathVar(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
