package domain

import (
	"fmt"
	"time"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusPaid       PayoutStatus = "PAID"
	PayoutStatusFailed     PayoutStatus = "FAILED"
)

type PayoutRequest struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"owner_id"`
	AmountCents    int64        `json:"amount_cents"`
	Status         PayoutStatus `json:"status"`
	Attempts       int          `json:"attempts"`
	ExternalRef    string       `json:"external_ref,omitempty"`
	IdempotencyKey string       `json:"idempotency_key"`
	FailureReason  string       `json:"failure_reason,omitempty"`
	Refunded       bool         `json:"refunded"`
	ApprovedBy     string       `json:"approved_by,omitempty"`
	ProcessingAt   *time.Time   `json:"processing_at,omitempty"`
	PaidAt         *time.Time   `json:"paid_at,omitempty"`
	FailedAt       *time.Time   `json:"failed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// AttemptKey is the ledger idempotency key for the debit and refund of the
// current attempt.
func (p *PayoutRequest) AttemptKey() string {
	return fmt.Sprintf("%s:%d", p.ID, p.Attempts)
}

func (p *PayoutRequest) IsFinal() bool {
	return p.Status == PayoutStatusPaid || (p.Status == PayoutStatusFailed && p.Refunded)
}

type PayoutOutcome string

const (
	PayoutOutcomePaid   PayoutOutcome = "paid"
	PayoutOutcomeFailed PayoutOutcome = "failed"
)
