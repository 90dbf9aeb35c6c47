// README: Backend selection; postgres+redis or in-process stores, and the auth/notification edge.
package main

import (
	"context"
	"fmt"
	"log"

	"fuelhaul/internal/config"
	"fuelhaul/internal/infra"
	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/catalog"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/location"
	"fuelhaul/internal/modules/matching"
	"fuelhaul/internal/modules/notify"
	"fuelhaul/internal/modules/order"
	"fuelhaul/internal/modules/reminder"
)

type stores struct {
	tx        infra.TxManager
	orders    order.Storage
	fleet     fleet.Storage
	catalog   catalog.Storage
	accounts  account.Storage
	reminders reminder.Storage
	inbox     notify.Inbox
	feed      location.Feed
	history   location.History
	locker    matching.KeyLocker
	closers   []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Printf("storage: in-process stores, state is lost on exit")
		return &stores{
			tx:        infra.NewMemoryTxManager(),
			orders:    order.NewMemoryStore(),
			fleet:     fleet.NewMemoryStore(),
			catalog:   catalog.NewMemoryStore(),
			accounts:  account.NewMemoryStore(),
			reminders: reminder.NewMemoryStore(),
			inbox:     notify.NewMemoryInbox(),
			feed:      location.NewMemoryFeed(),
			locker:    matching.NewLocalLocker(),
		}, nil
	case "postgres":
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := infra.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		return &stores{
			tx:        infra.NewPgTxManager(pool),
			orders:    order.NewStore(pool),
			fleet:     fleet.NewStore(pool),
			catalog:   catalog.NewStore(pool),
			accounts:  account.NewStore(pool),
			reminders: reminder.NewStore(pool),
			inbox:     notify.NewStore(pool),
			feed:      location.NewRedisFeed(rdb),
			history:   location.NewSnapshotStore(pool),
			locker:    matching.NewRedisLocker(rdb, cfg.Matching.LockTTL),
			closers:   []func(){pool.Close, func() { _ = rdb.Close() }},
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// edge holds the external collaborators: token verification, push, SMS and
// the order event stream. Unconfigured brokers degrade to log-only senders.
type edge struct {
	verifier infra.TokenVerifier
	live     notify.LiveChannel
	sms      notify.SMSSender
	events   order.EventPublisher
	closers  []func()
}

func (e *edge) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func openEdge(ctx context.Context, cfg config.Config) (*edge, error) {
	e := &edge{sms: notify.LogSMSSender{}}

	if cfg.Firebase.ProjectID != "" {
		app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("firebase: %w", err)
		}
		verifier, err := infra.NewFirebaseVerifier(ctx, app)
		if err != nil {
			return nil, fmt.Errorf("firebase auth: %w", err)
		}
		e.verifier = verifier
		msg, err := infra.NewFirebaseMessaging(ctx, app)
		if err != nil {
			log.Printf("firebase: messaging unavailable, push disabled: %v", err)
		} else {
			e.live = notify.NewFCMChannel(msg)
		}
	} else {
		e.verifier = infra.NewJWTVerifier(cfg.Auth.JWTSecret)
	}

	if cfg.RabbitMQ.URL != "" {
		mq, err := infra.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		if err := mq.DeclareQueue(cfg.RabbitMQ.SMSQueue); err != nil {
			_ = mq.Close()
			return nil, fmt.Errorf("rabbitmq: declare %s: %w", cfg.RabbitMQ.SMSQueue, err)
		}
		e.sms = notify.NewQueueSMSSender(mq, cfg.RabbitMQ.SMSQueue)
		e.closers = append(e.closers, func() { _ = mq.Close() })
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kp := infra.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		e.events = kp
		e.closers = append(e.closers, func() { _ = kp.Close() })
	}
	return e, nil
}
