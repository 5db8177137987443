package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kjannette/cryptostats-backend/internal/config"
	"github.com/kjannette/cryptostats-backend/internal/db"
	"github.com/kjannette/cryptostats-backend/internal/logging"
)

// Open connects the store selected by cfg.StoreDriver and prepares its
// schema or indexes. The returned func releases the connection.
func Open(ctx context.Context, cfg *config.Config) (PriceStore, func(), error) {
	log := logging.For("db")

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		log.Infof("connecting to postgres (%s)", cfg.DBName)
		pool, err := db.Connect(cfg.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := db.TestConnection(pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewPriceRepo(pool), func() {
			pool.Close()
			log.Info("connection pool closed")
		}, nil

	case config.DriverMongo:
		log.Infof("connecting to mongo (%s.%s)", cfg.MongoDatabase, cfg.MongoCollection)
		client, err := db.ConnectMongo(cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		repo := NewMongoPriceRepo(client, cfg.MongoDatabase, cfg.MongoCollection)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return repo, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				log.WithError(err).Warn("mongo disconnect")
				return
			}
			log.Info("mongo client disconnected")
		}, nil

	case config.DriverMemory:
		log.Warn("using in-memory store")
		return NewMemoryPriceRepo(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
