package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/wanderguard/internal/api/http"
	"github.com/i474232898/wanderguard/internal/config"
	"github.com/i474232898/wanderguard/internal/events"
	"github.com/i474232898/wanderguard/internal/firebase"
	"github.com/i474232898/wanderguard/internal/logging"
	"github.com/i474232898/wanderguard/internal/metrics"
	"github.com/i474232898/wanderguard/internal/patient"
	"github.com/i474232898/wanderguard/internal/risk"
	"github.com/i474232898/wanderguard/internal/scheduler"
	"github.com/i474232898/wanderguard/internal/store"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	// Shared HTTP client for outbound Firebase calls.
	httpCfg := firebase.HTTPClientConfig{
		Client:  &http.Client{Timeout: cfg.HTTPTimeout},
		Backoff: firebase.DefaultBackoff,
	}

	patients, closeStore, err := openStore(cfg, httpCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, err := newNotifier(cmd.Context(), cfg, httpCfg, log)
	if err != nil {
		return err
	}
	outbox := scheduler.NewOutbox(notifier, cfg.PushOutboxSize, cfg.PushRetryMaxAttempts, log)

	publisher := newPublisher(cfg, log)
	defer publisher.Close()

	m := metrics.New()
	service := patient.NewService(patients, risk.NewEngine(cfg.Risk, cfg.Location),
		patient.WithNotifier(outbox),
		patient.WithPublisher(publisher),
		patient.WithRecorder(m),
		patient.WithLogger(log),
		patient.WithDeliveryTimeout(cfg.DeliveryTimeout),
	)

	// Scheduler that periodically retries failed pushes.
	sched := scheduler.New(outbox, cfg.PushRetryInterval, log)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "wanderguard",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "wanderguard",
			"store":   cfg.StoreBackend,
		})
	})

	httpapi.RegisterRoutes(app, service, httpapi.Options{
		TimeOutsideUnit: cfg.TimeOutsideUnit,
		Metrics:         m.Handler(),
		StaticDir:       cfg.StaticDir,
	})

	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Warn("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Warn("error during shutdown")
	}
	// Let in-flight pushes and events finish before the publisher closes.
	service.Wait()
	return nil
}

func openStore(cfg *config.AppConfig, httpCfg firebase.HTTPClientConfig) (patient.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendFirebase:
		db, err := firebase.NewRTDB(firebase.RTDBConfig{
			BaseURL:   cfg.FirebaseDBURL,
			AuthToken: cfg.FirebaseAuthToken,
			HTTP:      httpCfg,
		})
		if err != nil {
			return nil, nil, err
		}
		return db, func() {}, nil
	case config.BackendBolt:
		db, err := store.OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	default:
		return store.NewMemoryStore(cfg.StoreMaxAlerts, cfg.StoreMaxAge), func() {}, nil
	}
}

type logNotifier struct {
	log logrus.FieldLogger
}

func (n logNotifier) SendPush(_ context.Context, token, title, body string) error {
	n.log.WithFields(logrus.Fields{"title": title, "body": body}).Info("push notification (no fcm credentials configured)")
	return nil
}

func newNotifier(ctx context.Context, cfg *config.AppConfig, httpCfg firebase.HTTPClientConfig, log logrus.FieldLogger) (patient.Notifier, error) {
	creds, err := cfg.CredentialsJSON()
	if err != nil {
		return nil, err
	}
	if creds == nil {
		log.Warn("GOOGLE_APPLICATION_CREDENTIALS not set; push notifications are only logged")
		return logNotifier{log: log}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return firebase.NewFCM(ctx, creds, cfg.FirebaseProjectID, httpCfg)
}

type closablePublisher interface {
	patient.Publisher
	Close() error
}

func newPublisher(cfg *config.AppConfig, log logrus.FieldLogger) closablePublisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Noop{}
	}
	log.WithFields(logrus.Fields{"brokers": cfg.KafkaBrokers, "topic": cfg.KafkaTopic}).Info("publishing verdict events to kafka")
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}
