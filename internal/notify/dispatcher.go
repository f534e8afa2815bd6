// Package notify fans a reminder notification out across its enabled
// channels, recording one delivery row per attempt.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
	"github.com/EscobozaEstrada/mrwhite-sub001/internal/metrics"
	"github.com/EscobozaEstrada/mrwhite-sub001/internal/templates"
)

// Payload is a rendered message handed to a channel deliverer
type Payload struct {
	Title         string
	Body          string
	CompletionURL string
}

// Deliverer sends a rendered payload to one owner over one channel
type Deliverer interface {
	Deliver(ctx context.Context, owner *core.Owner, p Payload) error
}

// NotificationStore is the slice of the storage layer the dispatcher needs
type NotificationStore interface {
	CreateNotification(n *core.Notification) error
	UpdateNotificationStatus(id int64, status core.NotificationStatus, errMsg string) error
	SetCompletionToken(reminderID int64, token string, created time.Time) error
}

// Dispatcher implements core.Dispatcher over a set of channel deliverers
type Dispatcher struct {
	channels  map[core.Channel]Deliverer
	store     NotificationStore
	renderer  *templates.Renderer
	publicURL string

	logger   *slog.Logger
	metrics  metrics.Collector
	newToken func() string
	now      func() time.Time
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics sets the metrics collector
func WithMetrics(m metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTokenSource overrides completion token generation (used in tests)
func WithTokenSource(gen func() string) Option {
	return func(d *Dispatcher) { d.newToken = gen }
}

// WithClock overrides the time source (used in tests)
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a Dispatcher. publicURL is the externally
// reachable base used to build completion links in emails.
func NewDispatcher(store NotificationStore, renderer *templates.Renderer, publicURL string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		channels:  make(map[core.Channel]Deliverer),
		store:     store,
		renderer:  renderer,
		publicURL: publicURL,
		logger:    slog.Default(),
		metrics:   metrics.NewNop(),
		newToken:  uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register attaches a deliverer for a channel
func (d *Dispatcher) Register(ch core.Channel, deliverer Deliverer) {
	d.channels[ch] = deliverer
}

// Send renders the message for the owner's locale and delivers it on every
// enabled channel. Each channel gets its own notification row; a failing
// channel never blocks the others.
func (d *Dispatcher) Send(ctx context.Context, rem *core.Reminder, owner *core.Owner, kind core.MessageKind) core.DispatchResult {
	payload := d.render(rem, owner, kind)

	var result core.DispatchResult
	for _, ch := range rem.Channels() {
		err := d.deliver(ctx, ch, rem, owner, payload)
		result.Outcomes = append(result.Outcomes, core.DispatchOutcome{Channel: ch, Err: err})
	}
	return result
}

func (d *Dispatcher) deliver(ctx context.Context, ch core.Channel, rem *core.Reminder, owner *core.Owner, payload Payload) error {
	record := &core.Notification{ReminderID: rem.ID, Channel: ch}
	if err := d.store.CreateNotification(record); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	deliverer, ok := d.channels[ch]
	if !ok {
		err := fmt.Errorf("channel %s not configured", ch)
		d.finish(record, err)
		return err
	}

	if ch == core.ChannelEmail {
		url, err := d.mintCompletionURL(rem.ID)
		if err != nil {
			d.finish(record, err)
			return err
		}
		payload.CompletionURL = url
		payload.Body += "\n\n" + d.renderer.Render(owner.Locale, "email.complete_hint",
			map[string]string{"completion_url": url})
	}

	err := deliverer.Deliver(ctx, owner, payload)
	d.finish(record, err)
	return err
}

// finish records the attempt outcome on the notification row
func (d *Dispatcher) finish(record *core.Notification, err error) {
	status := core.NotificationSent
	errMsg := ""
	if err != nil {
		status = core.NotificationFailed
		errMsg = err.Error()
	}
	if uerr := d.store.UpdateNotificationStatus(record.ID, status, errMsg); uerr != nil {
		d.logger.Error("failed to update notification status", "notification_id", record.ID, "error", uerr)
	}
	d.metrics.DeliveryRecorded(string(record.Channel), string(status))
}

// mintCompletionURL issues a fresh single-use token and builds the public
// completion link
func (d *Dispatcher) mintCompletionURL(reminderID int64) (string, error) {
	token := d.newToken()
	if err := d.store.SetCompletionToken(reminderID, token, d.now().UTC()); err != nil {
		return "", fmt.Errorf("failed to store completion token: %w", err)
	}
	return fmt.Sprintf("%s/reminders/%d/complete?token=%s", d.publicURL, reminderID, token), nil
}

func (d *Dispatcher) render(rem *core.Reminder, owner *core.Owner, kind core.MessageKind) Payload {
	data := map[string]string{
		"title":       rem.Title,
		"description": rem.Description,
		"due_date":    rem.DueDate.Format("2006-01-02"),
		"count":       strconv.Itoa(rem.FollowupCount + 1),
	}

	prefix := "reminder"
	switch {
	case kind == core.MessageFollowup && rem.Status == core.StatusOverdue:
		prefix = "overdue"
	case kind == core.MessageFollowup:
		prefix = "followup"
	}

	return Payload{
		Title: d.renderer.Render(owner.Locale, prefix+".title", data),
		Body:  d.renderer.Render(owner.Locale, prefix+".body", data),
	}
}
