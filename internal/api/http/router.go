package http

import (
	"net/http"

	"mentorbook-backend/internal/metrics"
	"mentorbook-backend/internal/security"

	"github.com/gorilla/mux"
)

// WebhookSecrets holds the shared HMAC secrets of the payment gateway and
// the payout provider.
type WebhookSecrets struct {
	Payments string
	Payouts  string
}

// NewRouter registers every named route. Route names key the security
// levels in config.EndpointSecurityConfig.
func NewRouter(svc Services, tm security.TokenManager, secrets WebhookSecrets) *mux.Router {
	h := NewHandler(svc)
	auth := NewAuthMiddleware(tm, map[string]string{
		"PaymentWebhook": secrets.Payments,
		"PayoutWebhook":  secrets.Payouts,
	})

	router := mux.NewRouter()
	router.Use(requestIDMiddleware, metricsMiddleware, auth.Handler)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.Handle("/metrics", metrics.Handler()).Methods("GET").Name("Metrics")

	hooks := router.PathPrefix("/webhooks").Subrouter()
	hooks.HandleFunc("/payments", h.PaymentWebhook).Methods("POST").Name("PaymentWebhook")
	hooks.HandleFunc("/payouts", h.PayoutWebhook).Methods("POST").Name("PayoutWebhook")

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/bookings", h.CreateBooking).Methods("POST").Name("CreateBooking")
	api.HandleFunc("/bookings", h.ListBookings).Methods("GET").Name("ListBookings")
	api.HandleFunc("/bookings/{id}", h.GetBooking).Methods("GET").Name("GetBooking")
	api.HandleFunc("/bookings/{id}/cancel", h.CancelBooking).Methods("POST").Name("CancelBooking")
	api.HandleFunc("/bookings/{id}/accept", h.AcceptBooking).Methods("POST").Name("AcceptBooking")
	api.HandleFunc("/bookings/{id}/decline", h.DeclineBooking).Methods("POST").Name("DeclineBooking")
	api.HandleFunc("/bookings/{id}/complete", h.CompleteBooking).Methods("POST").Name("CompleteBooking")
	api.HandleFunc("/bookings/{id}/join", h.RecordAttendance).Methods("POST").Name("RecordAttendance")

	api.HandleFunc("/templates", h.CreateTemplate).Methods("POST").Name("CreateTemplate")
	api.HandleFunc("/templates", h.ListTemplates).Methods("GET").Name("ListTemplates")
	api.HandleFunc("/templates/{id}", h.GetTemplate).Methods("GET").Name("GetTemplate")
	api.HandleFunc("/templates/{id}", h.UpdateTemplate).Methods("PUT").Name("UpdateTemplate")
	api.HandleFunc("/templates/{id}", h.DeleteTemplate).Methods("DELETE").Name("DeleteTemplate")
	api.HandleFunc("/templates/{id}/publish", h.PublishTemplate).Methods("POST").Name("PublishTemplate")
	api.HandleFunc("/templates/{id}/pause", h.PauseTemplate).Methods("POST").Name("PauseTemplate")
	api.HandleFunc("/templates/{id}/resume", h.ResumeTemplate).Methods("POST").Name("ResumeTemplate")

	api.HandleFunc("/calendar/{ownerID}", h.GetCalendar).Methods("GET").Name("GetCalendar")

	api.HandleFunc("/wallet", h.GetWallet).Methods("GET").Name("GetWallet")
	api.HandleFunc("/wallet/topup", h.TopUp).Methods("POST").Name("TopUp")
	api.HandleFunc("/wallet/withdraw", h.Withdraw).Methods("POST").Name("Withdraw")
	api.HandleFunc("/wallet/transactions", h.GetTransactions).Methods("GET").Name("GetTransactions")

	api.HandleFunc("/payouts", h.CreatePayout).Methods("POST").Name("CreatePayout")
	api.HandleFunc("/payouts", h.ListPayouts).Methods("GET").Name("ListPayouts")
	api.HandleFunc("/payouts/{id}", h.GetPayout).Methods("GET").Name("GetPayout")

	api.HandleFunc("/notifications", h.GetNotifications).Methods("GET").Name("GetNotifications")
	api.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods("POST").Name("MarkNotificationRead")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/payouts/{id}/approve", h.ApprovePayout).Methods("POST").Name("ApprovePayout")
	admin.HandleFunc("/payouts/{id}/retry", h.RetryPayout).Methods("POST").Name("RetryPayout")
	admin.HandleFunc("/wallets/{ownerID}/lock", h.LockWallet).Methods("POST").Name("LockWallet")
	admin.HandleFunc("/wallets/{ownerID}/unlock", h.UnlockWallet).Methods("POST").Name("UnlockWallet")

	return router
}
