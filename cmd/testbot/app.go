package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-testbot/internal/chart"
	"github.com/mind-engage/mindengage-testbot/internal/config"
	"github.com/mind-engage/mindengage-testbot/internal/db"
	"github.com/mind-engage/mindengage-testbot/internal/eligibility"
	"github.com/mind-engage/mindengage-testbot/internal/exam"
	"github.com/mind-engage/mindengage-testbot/internal/grading"
	"github.com/mind-engage/mindengage-testbot/internal/notify"
	"github.com/mind-engage/mindengage-testbot/internal/session"
	"github.com/mind-engage/mindengage-testbot/internal/storage"
	syncx "github.com/mind-engage/mindengage-testbot/internal/sync"
)

// app holds every long-lived dependency built from the config.
type app struct {
	cfg      config.Config
	loc      *time.Location
	store    exam.Store
	events   syncx.Log
	blobs    storage.BlobStore
	sessions session.Store
	gate     *eligibility.Gate
	sender   *notify.Dispatcher
	grader   *grading.Service

	pings   []func(context.Context) error
	closers []func() error
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, loc: loc}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var rdb *redis.Client
	if cfg.SessionDriver == "redis" || cfg.EligibilityDriver == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.pings = append(a.pings, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	if cfg.SessionDriver == "redis" {
		a.sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
	} else {
		a.sessions = session.NewMemoryStore(cfg.SessionTTL)
	}

	switch cfg.EligibilityDriver {
	case "static":
		a.gate = eligibility.NewGate(eligibility.NewStatic(cfg.EligibleIDs))
	case "redis":
		a.gate = eligibility.NewGate(eligibility.NewRedisSet(rdb, cfg.EligibilityRedisKey))
	default:
		a.gate = eligibility.NewGate(eligibility.Open{})
	}

	fs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("blob store: %w", err)
	}
	a.blobs = fs

	n, err := a.notifier()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sender = notify.NewDispatcher(n,
		notify.WithEventLog(a.events),
		notify.WithRetry(notify.RetryConfig{
			MaxAttempts: cfg.NotifyMaxAttempts,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Timeout:     cfg.NotifyTimeout,
		}),
	)

	a.grader = grading.NewService(a.store,
		grading.WithSender(a.sender),
		grading.WithChartRenderer(chart.Renderer{}),
		grading.WithBlobStore(a.blobs),
		grading.WithEventLog(a.events),
	)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.DBDriver {
	case "sqlite", "postgres":
		dbh, err := db.Open(ctx, db.Driver(a.cfg.DBDriver), a.cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("db open failed: %w", err)
		}
		a.store = exam.NewSQLStore(dbh, a.cfg.DBDriver, a.loc)
		a.events = syncx.NewEventRepo(dbh)
		a.pings = append(a.pings, dbh.PingContext)
	case "mongo":
		ms, err := exam.OpenMongo(ctx, a.cfg.MongoURI, a.cfg.MongoDB, a.loc)
		if err != nil {
			return err
		}
		a.store = ms
		a.events = syncx.NewMemoryLog()
		a.pings = append(a.pings, ms.Ping)
	default:
		log.Printf("warning: memory store, data is lost on exit")
		a.store = exam.NewInMemoryStore()
		a.events = syncx.NewMemoryLog()
	}
	a.closers = append(a.closers, a.store.Close)
	return nil
}

func (a *app) notifier() (notify.Notifier, error) {
	switch a.cfg.NotifyDriver {
	case "amqp":
		an, err := notify.NewAMQPNotifier(a.cfg.RabbitMQURI, a.cfg.RabbitMQExchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, an.Close)
		return an, nil
	case "webhook":
		return notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:          a.cfg.NotifyWebhookURL,
			TokenURL:     a.cfg.NotifyTokenURL,
			ClientID:     a.cfg.NotifyClientID,
			ClientSecret: a.cfg.NotifyClientSecret,
		}), nil
	default:
		return notify.LogNotifier{}, nil
	}
}

// ready pings every backing service.
func (a *app) ready(ctx context.Context) error {
	for _, p := range a.pings {
		if err := p(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
}
