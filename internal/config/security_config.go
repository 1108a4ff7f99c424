package config

type SecurityLevel int

const (
	SecurityPublic  SecurityLevel = iota // No authentication
	SecurityWebhook                      // HMAC signature required
	SecurityAccess                       // Access token required
	SecurityAdmin                        // Access token with admin role required
)

// EndpointSecurityConfig maps route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Calendar and scrape endpoint - Public
	"GetCalendar": SecurityPublic,
	"Metrics":     SecurityPublic,

	// Webhooks - signed by the provider
	"PaymentWebhook": SecurityWebhook,
	"PayoutWebhook":  SecurityWebhook,

	// Bookings - Access Protected
	"CreateBooking":    SecurityAccess,
	"GetBooking":       SecurityAccess,
	"ListBookings":     SecurityAccess,
	"CancelBooking":    SecurityAccess,
	"AcceptBooking":    SecurityAccess,
	"DeclineBooking":   SecurityAccess,
	"CompleteBooking":  SecurityAccess,
	"RecordAttendance": SecurityAccess,

	// Templates - Access Protected
	"CreateTemplate":  SecurityAccess,
	"UpdateTemplate":  SecurityAccess,
	"PublishTemplate": SecurityAccess,
	"PauseTemplate":   SecurityAccess,
	"ResumeTemplate":  SecurityAccess,
	"DeleteTemplate":  SecurityAccess,
	"GetTemplate":     SecurityAccess,
	"ListTemplates":   SecurityAccess,

	// Wallet - Access Protected
	"GetWallet":       SecurityAccess,
	"TopUp":           SecurityAccess,
	"Withdraw":        SecurityAccess,
	"GetTransactions": SecurityAccess,
	"CreatePayout":    SecurityAccess,
	"GetPayout":       SecurityAccess,
	"ListPayouts":     SecurityAccess,

	// Notifications - Access Protected
	"GetNotifications":     SecurityAccess,
	"MarkNotificationRead": SecurityAccess,

	// Admin
	"ApprovePayout": SecurityAdmin,
	"RetryPayout":   SecurityAdmin,
	"LockWallet":    SecurityAdmin,
	"UnlockWallet":  SecurityAdmin,
}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAdmin
}
