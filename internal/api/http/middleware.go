package http

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/metrics"
	"mentorbook-backend/internal/security"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	RequestIDHeader = "X-Request-ID"
	SignatureHeader = "X-Signature"
)

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
		return route.GetName()
	}
	return "unmatched"
}

// requestIDMiddleware propagates or assigns a request id and attaches it to
// the logging context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		route := routeName(r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(m.Code)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(m.Duration.Seconds())
		logger.DebugContext(r.Context(), "Request served",
			"method", r.Method, "route", route, "status", m.Code, "duration", m.Duration)
	})
}

// AuthMiddleware enforces the security level configured for each named route.
type AuthMiddleware struct {
	tokenManager   security.TokenManager
	webhookSecrets map[string][]byte
}

// NewAuthMiddleware builds the middleware. webhookSecrets is keyed by route
// name; a webhook route without a secret rejects every call.
func NewAuthMiddleware(tm security.TokenManager, webhookSecrets map[string]string) *AuthMiddleware {
	secrets := make(map[string][]byte, len(webhookSecrets))
	for route, secret := range webhookSecrets {
		if secret != "" {
			secrets[route] = []byte(secret)
		}
	}
	return &AuthMiddleware{tokenManager: tm, webhookSecrets: secrets}
}

func (a *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeName(r)
		level := config.GetSecurityLevel(route)

		switch level {
		case config.SecurityPublic:
			next.ServeHTTP(w, r)
			return
		case config.SecurityWebhook:
			if err := a.verifySignature(route, r); err != nil {
				logger.WarnContext(r.Context(), "Webhook signature rejected", "route", route, "error", err)
				writeMessage(w, http.StatusUnauthorized, "invalid signature")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeMessage(w, http.StatusUnauthorized, "authorization token is not provided")
			return
		}
		claims, err := a.tokenManager.ValidateToken(token)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}
		if claims.Type != security.TokenTypeAccess {
			writeMessage(w, http.StatusForbidden, "access token required")
			return
		}
		if level == config.SecurityAdmin && !claims.IsAdmin() {
			writeMessage(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func extractBearer(header string) string {
	// Remove Bearer prefix if present
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(header)
}

// verifySignature checks the hex HMAC-SHA256 of the raw body and restores
// the body for the handler.
func (a *AuthMiddleware) verifySignature(route string, r *http.Request) error {
	secret, ok := a.webhookSecrets[route]
	if !ok {
		return errNoSecret
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	got, err := hex.DecodeString(strings.TrimPrefix(r.Header.Get(SignatureHeader), "sha256="))
	if err != nil || len(got) == 0 {
		return errBadSignature
	}
	if !hmac.Equal(got, Sign(secret, body)) {
		return errBadSignature
	}
	return nil
}

// Sign returns the HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
