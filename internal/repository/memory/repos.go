package memory

import (
	"context"
	"sort"
	"time"

	"mentorbook-backend/internal/domain"
)

type userRepository struct{ a accessor }

func (r *userRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.a.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return domain.NewNotFoundError("user", id)
		}
		out = &u
		return nil
	})
	return out, err
}

type templateRepository struct{ a accessor }

func (r *templateRepository) Create(_ context.Context, t *domain.AvailabilityTemplate) error {
	return r.a.do(func(st *state) error {
		if _, ok := st.templates[t.ID]; ok {
			return duplicate("template id")
		}
		st.templates[t.ID] = *t
		return nil
	})
}

func (r *templateRepository) GetByID(_ context.Context, id string) (*domain.AvailabilityTemplate, error) {
	var out *domain.AvailabilityTemplate
	err := r.a.do(func(st *state) error {
		t, ok := st.templates[id]
		if !ok {
			return domain.NewNotFoundError("template", id)
		}
		out = &t
		return nil
	})
	return out, err
}

func (r *templateRepository) Update(_ context.Context, t *domain.AvailabilityTemplate) error {
	return r.a.do(func(st *state) error {
		if _, ok := st.templates[t.ID]; !ok {
			return domain.NewNotFoundError("template", t.ID)
		}
		st.templates[t.ID] = *t
		return nil
	})
}

func (r *templateRepository) filter(keep func(t domain.AvailabilityTemplate) bool) ([]domain.AvailabilityTemplate, error) {
	var out []domain.AvailabilityTemplate
	err := r.a.do(func(st *state) error {
		for _, t := range st.templates {
			if keep(t) {
				out = append(out, t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, err
}

func (r *templateRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.AvailabilityTemplate, error) {
	return r.filter(func(t domain.AvailabilityTemplate) bool { return t.OwnerID == ownerID })
}

func (r *templateRepository) ListByStatus(_ context.Context, status domain.TemplateStatus) ([]domain.AvailabilityTemplate, error) {
	return r.filter(func(t domain.AvailabilityTemplate) bool { return t.Status == status })
}

type occurrenceRepository struct{ a accessor }

func (r *occurrenceRepository) CreateBatch(_ context.Context, occs []domain.Occurrence) error {
	return r.a.do(func(st *state) error {
		for _, o := range occs {
			if _, ok := st.occurrences[o.ID]; ok {
				return duplicate("occurrence id")
			}
		}
		for _, o := range occs {
			st.occurrences[o.ID] = o
		}
		return nil
	})
}

func (r *occurrenceRepository) GetByID(_ context.Context, id string) (*domain.Occurrence, error) {
	var out *domain.Occurrence
	err := r.a.do(func(st *state) error {
		o, ok := st.occurrences[id]
		if !ok {
			return domain.NewNotFoundError("occurrence", id)
		}
		out = &o
		return nil
	})
	return out, err
}

func (r *occurrenceRepository) filter(keep func(o domain.Occurrence) bool) ([]domain.Occurrence, error) {
	var out []domain.Occurrence
	err := r.a.do(func(st *state) error {
		for _, o := range st.occurrences {
			if keep(o) {
				out = append(out, o)
			}
		}
		return nil
	})
	sortOccurrences(out)
	return out, err
}

func (r *occurrenceRepository) ListByOwner(_ context.Context, ownerID string, from, to time.Time) ([]domain.Occurrence, error) {
	return r.filter(func(o domain.Occurrence) bool {
		return o.OwnerID == ownerID && overlapsWindow(o.StartTime, o.EndTime, from, to)
	})
}

func (r *occurrenceRepository) ListByTemplate(_ context.Context, templateID string, from time.Time) ([]domain.Occurrence, error) {
	return r.filter(func(o domain.Occurrence) bool {
		return o.TemplateID == templateID && !o.StartTime.Before(from)
	})
}

func (r *occurrenceRepository) CompareAndSetStatus(_ context.Context, id string, from, to domain.OccurrenceStatus) (bool, error) {
	var swapped bool
	err := r.a.do(func(st *state) error {
		o, ok := st.occurrences[id]
		if !ok || o.Status != from {
			return nil
		}
		o.Status = to
		o.UpdatedAt = time.Now().UTC()
		st.occurrences[id] = o
		swapped = true
		return nil
	})
	return swapped, err
}

func (r *occurrenceRepository) SetStatusByTemplate(_ context.Context, templateID string, after time.Time, from, to domain.OccurrenceStatus) (int64, error) {
	var n int64
	err := r.a.do(func(st *state) error {
		now := time.Now().UTC()
		for id, o := range st.occurrences {
			if o.TemplateID == templateID && !o.StartTime.Before(after) && o.Status == from {
				o.Status = to
				o.UpdatedAt = now
				st.occurrences[id] = o
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *occurrenceRepository) DeleteUnreferenced(_ context.Context, ids []string) ([]string, error) {
	var deleted []string
	err := r.a.do(func(st *state) error {
		referenced := map[string]bool{}
		for _, b := range st.bookings {
			referenced[b.OccurrenceID] = true
		}
		for _, id := range ids {
			if _, ok := st.occurrences[id]; ok && !referenced[id] {
				delete(st.occurrences, id)
				deleted = append(deleted, id)
			}
		}
		return nil
	})
	return deleted, err
}

type bookingRepository struct{ a accessor }

func isActive(s domain.BookingStatus) bool {
	return !s.IsTerminal()
}

// checkActive enforces at most one non-terminal booking per occurrence.
func checkActive(st *state, b *domain.Booking) error {
	if !isActive(b.Status) {
		return nil
	}
	for id, other := range st.bookings {
		if id != b.ID && other.OccurrenceID == b.OccurrenceID && isActive(other.Status) {
			return duplicate("active booking for occurrence")
		}
	}
	return nil
}

func (r *bookingRepository) Create(_ context.Context, b *domain.Booking) error {
	return r.a.do(func(st *state) error {
		if _, ok := st.bookings[b.ID]; ok {
			return duplicate("booking id")
		}
		if err := checkActive(st, b); err != nil {
			return err
		}
		st.bookings[b.ID] = *b
		return nil
	})
}

func (r *bookingRepository) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.a.do(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return domain.NewNotFoundError("booking", id)
		}
		out = &b
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock here; transactions are already exclusive.
func (r *bookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *bookingRepository) GetByPaymentRef(_ context.Context, paymentRef string) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.a.do(func(st *state) error {
		for _, b := range st.bookings {
			if paymentRef != "" && b.PaymentRef == paymentRef {
				b := b
				out = &b
				return nil
			}
		}
		return domain.NewNotFoundError("booking with payment", paymentRef)
	})
	return out, err
}

func (r *bookingRepository) Update(_ context.Context, b *domain.Booking) error {
	return r.a.do(func(st *state) error {
		if _, ok := st.bookings[b.ID]; !ok {
			return domain.NewNotFoundError("booking", b.ID)
		}
		if err := checkActive(st, b); err != nil {
			return err
		}
		st.bookings[b.ID] = *b
		return nil
	})
}

func (r *bookingRepository) GetActiveByOccurrence(_ context.Context, occurrenceID string) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.a.do(func(st *state) error {
		for _, b := range st.bookings {
			if b.OccurrenceID == occurrenceID && isActive(b.Status) {
				b := b
				out = &b
				return nil
			}
		}
		return domain.NewNotFoundError("active booking for occurrence", occurrenceID)
	})
	return out, err
}

func (r *bookingRepository) filter(keep func(b domain.Booking) bool, less func(a, b domain.Booking) bool) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.a.do(func(st *state) error {
		for _, b := range st.bookings {
			if keep(b) {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, err
}

func startDesc(a, b domain.Booking) bool { return a.StartTime.After(b.StartTime) }

func (r *bookingRepository) listPage(match func(b domain.Booking) bool, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error) {
	all, err := r.filter(func(b domain.Booking) bool {
		return match(b) && (status == "" || b.Status == status)
	}, startDesc)
	if err != nil {
		return nil, 0, err
	}
	return paginate(all, page, pageSize), int32(len(all)), nil
}

func (r *bookingRepository) ListByRequester(_ context.Context, requesterID string, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error) {
	return r.listPage(func(b domain.Booking) bool { return b.RequesterID == requesterID }, status, page, pageSize)
}

func (r *bookingRepository) ListByOwner(_ context.Context, ownerID string, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error) {
	return r.listPage(func(b domain.Booking) bool { return b.OwnerID == ownerID }, status, page, pageSize)
}

func (r *bookingRepository) ListExpiredPayments(_ context.Context, now time.Time) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.Status == domain.BookingStatusPaymentPending && !b.ExpiresAt.After(now)
	}, func(a, b domain.Booking) bool { return a.ExpiresAt.Before(b.ExpiresAt) })
}

func (r *bookingRepository) ListExpiredResponses(_ context.Context, now time.Time) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.Status == domain.BookingStatusPendingMentor && b.ResponseDeadline != nil && !b.ResponseDeadline.After(now)
	}, func(a, b domain.Booking) bool { return a.ResponseDeadline.Before(*b.ResponseDeadline) })
}

func (r *bookingRepository) ListConfirmedStartedBefore(_ context.Context, t time.Time) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.Status == domain.BookingStatusConfirmed && !b.StartTime.After(t) && b.NoShowOutcome == domain.NoShowNone
	}, func(a, b domain.Booking) bool { return a.StartTime.Before(b.StartTime) })
}

func (r *bookingRepository) ListConfirmedEndedBefore(_ context.Context, t time.Time) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.Status == domain.BookingStatusConfirmed && !b.EndTime.After(t)
	}, func(a, b domain.Booking) bool { return a.EndTime.Before(b.EndTime) })
}

type walletRepository struct{ a accessor }

func (r *walletRepository) GetByOwner(_ context.Context, ownerID string) (*domain.Wallet, error) {
	var out *domain.Wallet
	err := r.a.do(func(st *state) error {
		w, ok := st.wallets[ownerID]
		if !ok {
			return domain.NewNotFoundError("wallet for owner", ownerID)
		}
		out = &w
		return nil
	})
	return out, err
}

func (r *walletRepository) GetForUpdate(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	return r.GetByOwner(ctx, ownerID)
}

func (r *walletRepository) Create(_ context.Context, w *domain.Wallet) error {
	return r.a.do(func(st *state) error {
		if _, ok := st.wallets[w.OwnerID]; ok {
			return duplicate("wallet owner")
		}
		st.wallets[w.OwnerID] = *w
		return nil
	})
}

func (r *walletRepository) Update(_ context.Context, w *domain.Wallet) error {
	return r.a.do(func(st *state) error {
		cur, ok := st.wallets[w.OwnerID]
		if !ok || cur.ID != w.ID {
			return domain.NewNotFoundError("wallet", w.ID)
		}
		if w.BalanceCents < 0 {
			return domain.ErrInsufficientBalance
		}
		st.wallets[w.OwnerID] = *w
		return nil
	})
}

type ledgerRepository struct{ a accessor }

func (r *ledgerRepository) Append(_ context.Context, e *domain.LedgerEntry) error {
	return r.a.do(func(st *state) error {
		for _, existing := range st.entries {
			if existing.OwnerID == e.OwnerID && existing.Source == e.Source && existing.IdempotencyKey == e.IdempotencyKey {
				return duplicate("ledger idempotency key")
			}
		}
		st.entries = append(st.entries, *e)
		return nil
	})
}

func (r *ledgerRepository) GetByIdempotencyKey(_ context.Context, ownerID string, source domain.EntrySource, key string) (*domain.LedgerEntry, error) {
	var out *domain.LedgerEntry
	err := r.a.do(func(st *state) error {
		for _, e := range st.entries {
			if e.OwnerID == ownerID && e.Source == source && e.IdempotencyKey == key {
				e := e
				out = &e
				return nil
			}
		}
		return domain.NewNotFoundError("ledger entry", key)
	})
	return out, err
}

func (r *ledgerRepository) ListAllByOwner(_ context.Context, ownerID string) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := r.a.do(func(st *state) error {
		for _, e := range st.entries {
			if e.OwnerID == ownerID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func (r *ledgerRepository) ListByOwner(ctx context.Context, ownerID string, page, pageSize int32) ([]domain.LedgerEntry, int32, error) {
	all, err := r.ListAllByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	// newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return paginate(all, page, pageSize), int32(len(all)), nil
}

func (r *ledgerRepository) GetSummary(_ context.Context, ownerID string) (*domain.LedgerSummary, error) {
	summary := &domain.LedgerSummary{}
	err := r.a.do(func(st *state) error {
		for _, e := range st.entries {
			if e.OwnerID != ownerID {
				continue
			}
			summary.EntryCount++
			switch e.Direction {
			case domain.DirectionCredit:
				summary.CreditedCents += e.AmountCents
			case domain.DirectionDebit:
				summary.DebitedCents += e.AmountCents
			case domain.DirectionRefund:
				summary.RefundedCents += e.AmountCents
			}
		}
		if w, ok := st.wallets[ownerID]; ok {
			summary.BalanceCents = w.BalanceCents
		}
		return nil
	})
	return summary, err
}

type payoutRepository struct{ a accessor }

func (r *payoutRepository) Create(_ context.Context, p *domain.PayoutRequest) error {
	return r.a.do(func(st *state) error {
		for _, existing := range st.payouts {
			if existing.ID == p.ID || (existing.OwnerID == p.OwnerID && existing.IdempotencyKey == p.IdempotencyKey) {
				return duplicate("payout idempotency key")
			}
		}
		st.payouts[p.ID] = *p
		return nil
	})
}

func (r *payoutRepository) GetByID(_ context.Context, id string) (*domain.PayoutRequest, error) {
	var out *domain.PayoutRequest
	err := r.a.do(func(st *state) error {
		p, ok := st.payouts[id]
		if !ok {
			return domain.NewNotFoundError("payout", id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *payoutRepository) GetForUpdate(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *payoutRepository) GetByIdempotencyKey(_ context.Context, ownerID, key string) (*domain.PayoutRequest, error) {
	var out *domain.PayoutRequest
	err := r.a.do(func(st *state) error {
		for _, p := range st.payouts {
			if p.OwnerID == ownerID && p.IdempotencyKey == key {
				p := p
				out = &p
				return nil
			}
		}
		return domain.NewNotFoundError("payout with key", key)
	})
	return out, err
}

func (r *payoutRepository) Update(_ context.Context, p *domain.PayoutRequest) error {
	return r.a.do(func(st *state) error {
		if _, ok := st.payouts[p.ID]; !ok {
			return domain.NewNotFoundError("payout", p.ID)
		}
		st.payouts[p.ID] = *p
		return nil
	})
}

func (r *payoutRepository) filter(keep func(p domain.PayoutRequest) bool) ([]domain.PayoutRequest, error) {
	var out []domain.PayoutRequest
	err := r.a.do(func(st *state) error {
		for _, p := range st.payouts {
			if keep(p) {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *payoutRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.PayoutRequest, error) {
	return r.filter(func(p domain.PayoutRequest) bool { return p.OwnerID == ownerID })
}

func (r *payoutRepository) ListProcessingBefore(_ context.Context, t time.Time) ([]domain.PayoutRequest, error) {
	return r.filter(func(p domain.PayoutRequest) bool {
		return p.Status == domain.PayoutStatusProcessing && p.ProcessingAt != nil && !p.ProcessingAt.After(t)
	})
}

type notificationRepository struct{ a accessor }

func (r *notificationRepository) Create(_ context.Context, n *domain.Notification) error {
	return r.a.do(func(st *state) error {
		st.notifications = append(st.notifications, *n)
		return nil
	})
}

func (r *notificationRepository) List(_ context.Context, userID string, limit, offset int32) ([]domain.Notification, int32, error) {
	var all []domain.Notification
	err := r.a.do(func(st *state) error {
		for i := len(st.notifications) - 1; i >= 0; i-- {
			if st.notifications[i].UserID == userID {
				all = append(all, st.notifications[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	total := int32(len(all))
	if int(offset) >= len(all) {
		return nil, total, nil
	}
	end := len(all)
	if limit > 0 && int(offset+limit) < end {
		end = int(offset + limit)
	}
	return all[offset:end], total, nil
}

func (r *notificationRepository) MarkAsRead(_ context.Context, id, userID string) error {
	return r.a.do(func(st *state) error {
		for i := range st.notifications {
			if st.notifications[i].ID == id && st.notifications[i].UserID == userID {
				st.notifications[i].IsRead = true
				return nil
			}
		}
		return domain.NewNotFoundError("notification", id)
	})
}
