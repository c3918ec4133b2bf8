package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// Scheduler periodically retries queued push notifications.
type Scheduler struct {
	scheduler *gocron.Scheduler
	outbox    *Outbox
	interval  time.Duration
	log       logrus.FieldLogger
}

// New creates a new Scheduler.
func New(outbox *Outbox, interval time.Duration, log logrus.FieldLogger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		outbox:    outbox,
		interval:  interval,
		log:       log.WithField("component", "scheduler"),
	}
}

// Start schedules the retry job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.outbox == nil {
		s.log.Info("no push outbox configured; nothing to schedule")
		return nil
	}

	seconds := int(s.interval.Seconds())
	if seconds <= 0 {
		seconds = 60
	}

	_, err := s.scheduler.Every(seconds).Seconds().Do(func() {
		if s.outbox.Pending() == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		delivered := s.outbox.RetryPending(ctx)
		s.log.WithFields(logrus.Fields{
			"delivered": delivered,
			"pending":   s.outbox.Pending(),
		}).Info("push retry job completed")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
