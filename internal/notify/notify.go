// Package notify delivers user notifications to one or more sinks: the
// notifications table, a RabbitMQ exchange and an ops Telegram chat.
package notify

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/metrics"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
)

// Sink is a single delivery target.
type Sink interface {
	Name() string
	Notify(ctx context.Context, n model.Notification) error
}

// Multi fans a notification out to every sink. A failing sink does not stop
// the others; their errors are joined.
type Multi struct {
	sinks []Sink
}

// NewMulti builds a fan-out over sinks. Nil sinks are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Notify delivers n to every sink.
func (m *Multi) Notify(ctx context.Context, n model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, n); err != nil {
			metrics.NotificationsTotal.WithLabelValues(s.Name(), "error").Inc()
			log.WithError(err).WithFields(log.Fields{
				"sink":    s.Name(),
				"user_id": n.UserID,
			}).Warn("Notification sink failed")
			errs = append(errs, err)
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(s.Name(), "ok").Inc()
	}
	return errors.Join(errs...)
}

// Writer persists a notification.
type Writer interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// StoreSink writes notifications to the database for the user's inbox.
type StoreSink struct {
	w Writer
}

// NewStoreSink constructs a StoreSink.
func NewStoreSink(w Writer) *StoreSink {
	return &StoreSink{w: w}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Notify(ctx context.Context, n model.Notification) error {
	return s.w.CreateNotification(ctx, &n)
}
