package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theheadmen/cafeloyalty/internal/service"
)

type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Dispatcher queues notifications and delivers them from a single goroutine,
// so checkout never waits on the SMS provider.
type Dispatcher struct {
	sender Sender
	queue  chan service.Notification
}

func NewDispatcher(sender Sender, size int) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	return &Dispatcher{sender: sender, queue: make(chan service.Notification, size)}
}

// Notify enqueues n; when the queue is full the message is dropped.
func (d *Dispatcher) Notify(n service.Notification) {
	select {
	case d.queue <- n:
	default:
		log.Warn().Str("phone", n.Phone).Msg("notification queue full, message dropped")
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n service.Notification) {
	err := d.sender.Send(ctx, n.Phone, n.Body)
	var retry *ErrRetryLater
	if errors.As(err, &retry) {
		// provider throttled us, wait once and try again
		log.Warn().Dur("retry_after", retry.After).Msg("sms throttled")
		timer := time.NewTimer(retry.After)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		err = d.sender.Send(ctx, n.Phone, n.Body)
	}
	if err != nil {
		log.Error().Err(err).Str("phone", n.Phone).Msg("sms delivery failed")
		return
	}
	log.Debug().Str("phone", n.Phone).Msg("sms sent")
}

var _ service.Notifier = (*Dispatcher)(nil)
