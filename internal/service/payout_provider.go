package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
)

// PayoutProvider submits an approved payout for disbursement. The outcome
// arrives later through the payout webhook.
type PayoutProvider interface {
	Submit(ctx context.Context, p *domain.PayoutRequest) error
}

type httpPayoutProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPPayoutProvider(baseURL, apiKey string) PayoutProvider {
	return &httpPayoutProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type payoutSubmission struct {
	PayoutID    string `json:"payout_id"`
	ExternalRef string `json:"external_ref"`
	OwnerID     string `json:"owner_id"`
	AmountCents int64  `json:"amount_cents"`
	Attempt     int    `json:"attempt"`
}

func (p *httpPayoutProvider) Submit(ctx context.Context, payout *domain.PayoutRequest) error {
	body, err := json.Marshal(payoutSubmission{
		PayoutID:    payout.ID,
		ExternalRef: payout.ExternalRef,
		OwnerID:     payout.OwnerID,
		AmountCents: payout.AmountCents,
		Attempt:     payout.Attempts,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Idempotency-Key", payout.AttemptKey())

	logger.ExternalServiceCall("payout-provider", "Submit", "payoutID", payout.ID, "attempt", payout.Attempts)
	resp, err := p.client.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err = fmt.Errorf("payout provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		}
	}
	logger.ExternalServiceResult("payout-provider", "Submit", err, "payoutID", payout.ID)
	return err
}

// LoggingPayoutProvider accepts every submission and only logs it. Used in
// development, where payout webhooks are posted by hand.
type LoggingPayoutProvider struct{}

func (LoggingPayoutProvider) Submit(_ context.Context, p *domain.PayoutRequest) error {
	logger.Info("Payout submitted (mock provider)", "payoutID", p.ID, "externalRef", p.ExternalRef, "amount", p.AmountCents, "attempt", p.Attempts)
	return nil
}
