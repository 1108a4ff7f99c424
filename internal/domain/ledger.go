package domain

import "time"

type WalletStatus string

const (
	WalletStatusActive WalletStatus = "ACTIVE"
	WalletStatusLocked WalletStatus = "LOCKED"
)

// PlatformOwnerID owns the wallet that collects platform fees.
const PlatformOwnerID = "platform"

type Wallet struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"owner_id"`
	BalanceCents int64        `json:"balance_cents"`
	Status       WalletStatus `json:"status"`
	Currency     string       `json:"currency"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type EntryDirection string

const (
	DirectionCredit EntryDirection = "CREDIT"
	DirectionDebit  EntryDirection = "DEBIT"
	DirectionRefund EntryDirection = "REFUND"
)

// Sign is +1 for entries that increase the balance and -1 for debits.
func (d EntryDirection) Sign() int64 {
	if d == DirectionDebit {
		return -1
	}
	return 1
}

type EntrySource string

const (
	SourceTopUp          EntrySource = "TOP_UP"
	SourceWithdrawal     EntrySource = "WITHDRAWAL"
	SourceBookingPayment EntrySource = "BOOKING_PAYMENT"
	SourceBookingRefund  EntrySource = "BOOKING_REFUND"
	SourcePayout         EntrySource = "PAYOUT"
	SourcePayoutRefund   EntrySource = "PAYOUT_REFUND"
	SourcePlatformFee    EntrySource = "PLATFORM_FEE"
)

type LedgerEntry struct {
	ID             string         `json:"id"`
	WalletID       string         `json:"wallet_id"`
	OwnerID        string         `json:"owner_id"`
	Direction      EntryDirection `json:"direction"`
	Source         EntrySource    `json:"source"`
	AmountCents    int64          `json:"amount_cents"`
	BalanceBefore  int64          `json:"balance_before"`
	BalanceAfter   int64          `json:"balance_after"`
	IdempotencyKey string         `json:"idempotency_key"`
	BookingID      *string        `json:"booking_id,omitempty"`
	PayoutID       *string        `json:"payout_id,omitempty"`
	Description    string         `json:"description"`
	CreatedAt      time.Time      `json:"created_at"`
}

// LedgerMutation is one requested balance change. The idempotency key is
// scoped to (OwnerID, Source).
type LedgerMutation struct {
	OwnerID        string
	Direction      EntryDirection
	Source         EntrySource
	AmountCents    int64
	IdempotencyKey string
	BookingID      *string
	PayoutID       *string
	Description    string
}

func (m LedgerMutation) Validate() error {
	if m.OwnerID == "" {
		return NewValidationError("owner id is required")
	}
	if m.IdempotencyKey == "" {
		return NewValidationError("idempotency key is required")
	}
	if m.AmountCents <= 0 {
		return NewValidationError("amount must be positive")
	}
	switch m.Direction {
	case DirectionCredit, DirectionDebit, DirectionRefund:
	default:
		return NewValidationError("unknown direction %q", m.Direction)
	}
	return nil
}

type LedgerSummary struct {
	BalanceCents  int64 `json:"balance_cents"`
	CreditedCents int64 `json:"credited_cents"`
	DebitedCents  int64 `json:"debited_cents"`
	RefundedCents int64 `json:"refunded_cents"`
	EntryCount    int32 `json:"entry_count"`
}
