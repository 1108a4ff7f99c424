package http

import (
	"net/http"
	"strconv"
	"time"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/service"
	"mentorbook-backend/internal/utils"

	"github.com/gorilla/mux"
)

// Services groups the operations the API exposes.
type Services struct {
	Availability  service.AvailabilityService
	Bookings      service.BookingService
	Ledger        service.LedgerService
	Payouts       service.PayoutService
	Notifications service.NotificationService
}

type Handler struct {
	svc Services
	now func() time.Time
}

func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc, now: func() time.Time { return time.Now().UTC() }}
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func pageParams(r *http.Request) (int32, int32, error) {
	page, err := intQuery(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	size, err := intQuery(r, "page_size", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return int32(page), int32(size), nil
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError("%s must be an integer", key)
	}
	return n, nil
}

func timeQuery(r *http.Request, key string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	t, err := utils.ParseTime(raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError("%s: %v", key, err)
	}
	return t, nil
}

func pathVar(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

func idempotencyKey(r *http.Request) (string, error) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return "", domain.NewValidationError("Idempotency-Key header is required")
	}
	if len(key) > 128 {
		return "", domain.NewValidationError("Idempotency-Key must be at most 128 characters")
	}
	return key, nil
}

type listResponse[T any] struct {
	Items    []T   `json:"items"`
	Total    int32 `json:"total"`
	Page     int32 `json:"page,omitempty"`
	PageSize int32 `json:"page_size,omitempty"`
}

// nonNil keeps empty collections encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
