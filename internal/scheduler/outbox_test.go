package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyNotifier struct {
	mu       sync.Mutex
	failures int // remaining calls that fail
	sent     []string
}

func (n *flakyNotifier) SendPush(_ context.Context, token, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures > 0 {
		n.failures--
		return errors.New("fcm unavailable")
	}
	n.sent = append(n.sent, token)
	return nil
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func TestOutboxQueuesFailedPush(t *testing.T) {
	next := &flakyNotifier{failures: 1}
	o := NewOutbox(next, 10, 3, quietLogger())

	err := o.SendPush(context.Background(), "tok-1", "title", "body")
	require.Error(t, err)
	assert.Equal(t, 1, o.Pending())

	assert.Equal(t, 1, o.RetryPending(context.Background()))
	assert.Equal(t, 0, o.Pending())
	assert.Equal(t, []string{"tok-1"}, next.sent)
}

func TestOutboxSuccessIsNotQueued(t *testing.T) {
	o := NewOutbox(&flakyNotifier{}, 10, 3, quietLogger())

	require.NoError(t, o.SendPush(context.Background(), "tok-1", "title", "body"))
	assert.Equal(t, 0, o.Pending())
}

func TestOutboxDropsAfterMaxAttempts(t *testing.T) {
	log, hook := test.NewNullLogger()
	next := &flakyNotifier{failures: 10}
	o := NewOutbox(next, 10, 3, log)

	_ = o.SendPush(context.Background(), "tok-1", "title", "body")
	assert.Equal(t, 0, o.RetryPending(context.Background()))
	assert.Equal(t, 1, o.Pending())

	assert.Equal(t, 0, o.RetryPending(context.Background()))
	assert.Equal(t, 0, o.Pending())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestOutboxSingleAttemptNeverQueues(t *testing.T) {
	o := NewOutbox(&flakyNotifier{failures: 1}, 10, 1, quietLogger())

	require.Error(t, o.SendPush(context.Background(), "tok-1", "title", "body"))
	assert.Equal(t, 0, o.Pending())
}

func TestOutboxCapacityDropsOldest(t *testing.T) {
	next := &flakyNotifier{failures: 3}
	o := NewOutbox(next, 2, 5, quietLogger())

	for _, tok := range []string{"a", "b", "c"} {
		_ = o.SendPush(context.Background(), tok, "title", "body")
	}
	require.Equal(t, 2, o.Pending())

	assert.Equal(t, 2, o.RetryPending(context.Background()))
	assert.Equal(t, []string{"b", "c"}, next.sent)
}

func TestOutboxCancelledRetryKeepsQueue(t *testing.T) {
	next := &flakyNotifier{failures: 2}
	o := NewOutbox(next, 10, 5, quietLogger())
	_ = o.SendPush(context.Background(), "a", "title", "body")
	_ = o.SendPush(context.Background(), "b", "title", "body")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 0, o.RetryPending(ctx))
	assert.Equal(t, 2, o.Pending())
}

func TestSchedulerStartStop(t *testing.T) {
	o := NewOutbox(&flakyNotifier{}, 10, 3, quietLogger())
	s := New(o, time.Minute, quietLogger())
	require.NoError(t, s.Start())
	s.Stop()
}
