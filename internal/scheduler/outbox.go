package scheduler

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/wanderguard/internal/patient"
)

type pendingPush struct {
	token    string
	title    string
	body     string
	attempts int
}

// Outbox wraps a notifier and keeps pushes that failed so they can be
// retried later. It implements patient.Notifier.
type Outbox struct {
	next        patient.Notifier
	capacity    int
	maxAttempts int
	log         logrus.FieldLogger

	mu    sync.Mutex
	queue []pendingPush
}

// NewOutbox creates an outbox holding at most capacity pushes, each tried at
// most maxAttempts times in total.
func NewOutbox(next patient.Notifier, capacity, maxAttempts int, log logrus.FieldLogger) *Outbox {
	if capacity <= 0 {
		capacity = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Outbox{
		next:        next,
		capacity:    capacity,
		maxAttempts: maxAttempts,
		log:         log.WithField("component", "push-outbox"),
	}
}

// SendPush tries the push once. On failure the push is queued for retry and
// the error is still returned to the caller.
func (o *Outbox) SendPush(ctx context.Context, token, title, body string) error {
	err := o.next.SendPush(ctx, token, title, body)
	if err != nil && o.maxAttempts > 1 {
		o.enqueue(pendingPush{token: token, title: title, body: body, attempts: 1})
	}
	return err
}

func (o *Outbox) enqueue(items ...pendingPush) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.queue = append(o.queue, items...)
	if over := len(o.queue) - o.capacity; over > 0 {
		o.log.WithField("dropped", over).Warn("push outbox full; dropping oldest")
		o.queue = o.queue[over:]
	}
}

// Pending returns the number of queued pushes.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// RetryPending makes one delivery attempt for every queued push and returns
// how many were delivered. Pushes that exhaust their attempts are dropped.
func (o *Outbox) RetryPending(ctx context.Context) int {
	o.mu.Lock()
	batch := o.queue
	o.queue = nil
	o.mu.Unlock()

	var delivered int
	var retry []pendingPush
	for i, p := range batch {
		if ctx.Err() != nil {
			retry = append(retry, batch[i:]...)
			break
		}
		if err := o.next.SendPush(ctx, p.token, p.title, p.body); err != nil {
			p.attempts++
			if p.attempts >= o.maxAttempts {
				o.log.WithError(err).WithField("attempts", p.attempts).Warn("giving up on push notification")
				continue
			}
			retry = append(retry, p)
			continue
		}
		delivered++
	}

	if len(retry) > 0 {
		o.mu.Lock()
		o.queue = append(retry, o.queue...)
		o.mu.Unlock()
	}
	return delivered
}
