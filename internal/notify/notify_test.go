package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/segmentio/kafka-go"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/repository/memory"
)

type flakyChannel struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	delivered []domain.Event
	users     []*domain.User
	done      chan struct{}
}

func (c *flakyChannel) Name() string { return "flaky" }

func (c *flakyChannel) Deliver(_ context.Context, ev domain.Event, u *domain.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.attempts <= c.failures {
		return errors.New("temporarily unavailable")
	}
	c.delivered = append(c.delivered, ev)
	c.users = append(c.users, u)
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	return nil
}

func TestDispatcher(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.User{ID: "mentee", Email: "mentee@test.com", Name: "Mentee"})

	t.Run("RetriesUntilDelivered", func(t *testing.T) {
		ch := &flakyChannel{failures: 2, done: make(chan struct{})}
		d := NewDispatcher(store.Users, 1, 4, 3, ch)
		d.backoff = time.Millisecond
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		d.Start(ctx)

		d.Notify(ctx, domain.Event{Type: domain.EventBookingConfirmed, UserID: "mentee", Title: "Booked"})
		select {
		case <-ch.done:
		case <-time.After(2 * time.Second):
			t.Fatal("event was not delivered")
		}
		d.Stop()

		assert.Equal(t, 3, ch.attempts)
		require.Len(t, ch.delivered, 1)
		require.NotNil(t, ch.users[0])
		assert.Equal(t, "mentee@test.com", ch.users[0].Email)
		assert.False(t, ch.delivered[0].OccurredAt.IsZero())
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		ch := &flakyChannel{failures: 100}
		d := NewDispatcher(store.Users, 1, 4, 2, ch)
		d.backoff = time.Millisecond
		d.Start(context.Background())

		d.Notify(context.Background(), domain.Event{Type: domain.EventBookingFailed, UserID: "unknown"})
		d.Stop()

		assert.Equal(t, 3, ch.attempts)
		assert.Empty(t, ch.delivered)
	})

	t.Run("NotifyAfterStopIsDropped", func(t *testing.T) {
		ch := &flakyChannel{}
		d := NewDispatcher(store.Users, 1, 1, 0, ch)
		d.Start(context.Background())
		d.Stop()

		assert.NotPanics(t, func() {
			d.Notify(context.Background(), domain.Event{Type: domain.EventPayoutPaid, UserID: "mentee"})
		})
		assert.Zero(t, ch.attempts)
	})
}

func TestInboxChannel(t *testing.T) {
	store := memory.NewStore()
	ch := NewInboxChannel(store.Notifications)
	ctx := context.Background()

	err := ch.Deliver(ctx, domain.Event{
		Type:       domain.EventBookingCancelled,
		UserID:     "mentor",
		Title:      "Booking cancelled",
		Message:    "Your session was cancelled",
		Attributes: map[string]string{"booking_id": "b-1"},
		OccurredAt: time.Now().UTC(),
	}, nil)
	require.NoError(t, err)

	notes, total, err := store.Notifications.List(ctx, "mentor", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), total)
	assert.Equal(t, "Booking cancelled", notes[0].Title)
	assert.Equal(t, "b-1", notes[0].Attributes["booking_id"])
	assert.Equal(t, string(domain.EventBookingCancelled), notes[0].Attributes["type"])
}

type fakeMail struct {
	sent   []*mail.SGMailV3
	status int
}

func (f *fakeMail) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, m)
	return &rest.Response{StatusCode: f.status}, nil
}

func TestEmailChannel(t *testing.T) {
	ctx := context.Background()
	ev := domain.Event{Type: domain.EventPayoutPaid, UserID: "mentor", Title: "Payout sent", Message: "Paid"}

	t.Run("Success", func(t *testing.T) {
		fake := &fakeMail{status: 202}
		ch := &EmailChannel{client: fake, fromEmail: "noreply@mentorbook.test", fromName: "Mentorbook"}
		err := ch.Deliver(ctx, ev, &domain.User{ID: "mentor", Email: "mentor@test.com", Name: "Mentor"})
		assert.NoError(t, err)
		require.Len(t, fake.sent, 1)
		assert.Equal(t, "Payout sent", fake.sent[0].Subject)
	})

	t.Run("No address", func(t *testing.T) {
		fake := &fakeMail{status: 202}
		ch := &EmailChannel{client: fake}
		assert.NoError(t, ch.Deliver(ctx, ev, nil))
		assert.Empty(t, fake.sent)
	})

	t.Run("Provider error status", func(t *testing.T) {
		fake := &fakeMail{status: 500}
		ch := &EmailChannel{client: fake}
		err := ch.Deliver(ctx, ev, &domain.User{Email: "mentor@test.com"})
		assert.Error(t, err)
	})
}

type fakePush struct {
	messages []*messaging.Message
}

func (f *fakePush) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.messages = append(f.messages, m)
	return "msg-1", nil
}

func TestPushChannel(t *testing.T) {
	fake := &fakePush{}
	ch := &PushChannel{client: fake}
	ev := domain.Event{Type: domain.EventBookingPending, UserID: "mentor", Title: "New request", Attributes: map[string]string{"booking_id": "b-1"}}

	require.NoError(t, ch.Deliver(context.Background(), ev, &domain.User{ID: "mentor", PushToken: "device-token"}))
	require.NoError(t, ch.Deliver(context.Background(), ev, &domain.User{ID: "mentor"}))

	require.Len(t, fake.messages, 1)
	assert.Equal(t, "device-token", fake.messages[0].Token)
	assert.Equal(t, "b-1", fake.messages[0].Data["booking_id"])
	assert.Equal(t, string(domain.EventBookingPending), fake.messages[0].Data["type"])
}

type fakeWriter struct {
	messages []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestEventChannel(t *testing.T) {
	fake := &fakeWriter{}
	ch := &EventChannel{writer: fake, topic: "mentorbook.events"}
	ev := domain.Event{Type: domain.EventBookingCompleted, UserID: "mentor", Attributes: map[string]string{"booking_id": "b-9"}}

	require.NoError(t, ch.Deliver(context.Background(), ev, nil))
	require.Len(t, fake.messages, 1)
	msg := fake.messages[0]
	assert.Equal(t, "mentorbook.events", msg.Topic)
	assert.Equal(t, []byte("mentor"), msg.Key)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, domain.EventBookingCompleted, decoded.Type)
	assert.Equal(t, "b-9", decoded.Attributes["booking_id"])

	_, err := NewEventChannel(nil, "topic")
	assert.Error(t, err)
}
