package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/paywatch/paywatch/internal/core/ports"
	"github.com/paywatch/paywatch/internal/infrastructure/config"
	"github.com/paywatch/paywatch/internal/infrastructure/db/memory"
	mongostore "github.com/paywatch/paywatch/internal/infrastructure/db/mongo"
	redisstore "github.com/paywatch/paywatch/internal/infrastructure/db/redis"
	"github.com/paywatch/paywatch/internal/infrastructure/http/handlers"
)

const closeTimeout = 5 * time.Second

// stores bundles the storage backends selected by configuration.
type stores struct {
	devices  ports.DeviceStore
	accounts ports.AccountStore
	payments ports.PaymentStore
	sessions ports.SessionStore

	// readiness checks keyed by dependency name
	pingers map[string]handlers.Pinger
	closers []func(context.Context) error
}

// openStores connects the document store and, when withSessions is set, the
// session store.
func openStores(ctx context.Context, cfg *config.Config, withSessions bool, log zerolog.Logger) (*stores, error) {
	s := &stores{pingers: map[string]handlers.Pinger{}}

	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory store, data is lost on exit")
		s.devices = memory.NewDeviceStore()
		s.accounts = memory.NewAccountStore()
		s.payments = memory.NewPaymentStore()
	case config.DriverMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Disconnect)
		s.pingers["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }

		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			s.close()
			return nil, err
		}
		s.devices = mongostore.NewDeviceRepository(db)
		s.accounts = mongostore.NewAccountRepository(db)
		s.payments = mongostore.NewPaymentRepository(db)
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongo")
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if !withSessions {
		return s, nil
	}

	switch cfg.Session.Store {
	case config.DriverMemory:
		s.sessions = memory.NewSessionStore()
	case config.DriverRedis:
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		s.pingers["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		s.sessions = redisstore.NewSessionStore(client)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	default:
		s.close()
		return nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
	return s, nil
}

// close releases connections in reverse order of opening.
func (s *stores) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i](ctx)
	}
	s.closers = nil
}
