package domain

type UserRole string

const (
	UserRoleUser  UserRole = "USER"
	UserRoleAdmin UserRole = "ADMIN"
)

// User is the read-only view of a profile that booking and payout flows need.
type User struct {
	ID                   string   `json:"id"`
	Email                string   `json:"email"`
	Name                 string   `json:"name"`
	Role                 UserRole `json:"role"`
	HourlyRateCents      int64    `json:"hourly_rate_cents"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	PushToken            string   `json:"-"`
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
