// Package notify delivers domain events after the transaction that produced
// them has committed. Delivery is asynchronous and best effort: failures are
// retried a bounded number of times and then logged.
package notify

import (
	"context"
	"sync"
	"time"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/metrics"
	"mentorbook-backend/internal/repository"
)

// Notifier accepts events for delivery. Notify never blocks on delivery.
type Notifier interface {
	Notify(ctx context.Context, events ...domain.Event)
}

// Channel is one delivery backend. user is nil when the recipient has no
// profile; channels that need an address skip such events.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event domain.Event, user *domain.User) error
}

type job struct {
	event   domain.Event
	channel Channel
	retries int
}

type Dispatcher struct {
	users      repository.UserRepository
	channels   []Channel
	jobs       chan job
	workers    int
	maxRetries int
	backoff    time.Duration

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(users repository.UserRepository, workers, queueSize, maxRetries int, channels ...Channel) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		users:      users,
		channels:   channels,
		jobs:       make(chan job, queueSize),
		workers:    workers,
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

// Start launches the workers. They exit when ctx is cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Stop closes the queue and waits for queued jobs to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) Notify(ctx context.Context, events ...domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, ev := range events {
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = time.Now().UTC()
		}
		for _, ch := range d.channels {
			select {
			case d.jobs <- job{event: ev, channel: ch}:
			default:
				logger.WarnContext(ctx, "Notification queue full, dropping event", "type", ev.Type, "user_id", ev.UserID, "channel", ch.Name())
				metrics.NotificationsDelivered.WithLabelValues(ch.Name(), "dropped").Inc()
			}
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	logger.Debug("Notification worker started", "worker", id)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Notification worker stopping", "worker", id)
			return
		case j, ok := <-d.jobs:
			if !ok {
				return
			}
			d.process(ctx, j)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, j job) {
	var user *domain.User
	if j.event.UserID != "" && d.users != nil {
		u, err := d.users.GetByID(ctx, j.event.UserID)
		if err == nil {
			user = u
		} else if domain.KindOf(err) != domain.KindNotFound {
			logger.Warn("Failed to load notification recipient", "user_id", j.event.UserID, "error", err)
		}
	}

	for {
		err := j.channel.Deliver(ctx, j.event, user)
		if err == nil {
			metrics.NotificationsDelivered.WithLabelValues(j.channel.Name(), "ok").Inc()
			return
		}
		if j.retries >= d.maxRetries {
			logger.Error("Notification delivery failed", "channel", j.channel.Name(), "type", j.event.Type, "user_id", j.event.UserID, "retries", j.retries, "error", err)
			metrics.NotificationsDelivered.WithLabelValues(j.channel.Name(), "error").Inc()
			return
		}
		j.retries++
		wait := time.Duration(j.retries*j.retries) * d.backoff
		logger.Warn("Retrying notification", "channel", j.channel.Name(), "type", j.event.Type, "attempt", j.retries, "backoff", wait, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, ...domain.Event) {}
