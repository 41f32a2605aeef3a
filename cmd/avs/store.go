package avs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TFMV/avs/internal/config"
	"github.com/TFMV/avs/internal/dataset"
	"github.com/TFMV/avs/internal/store"
	"github.com/TFMV/avs/internal/store/mongo"
	"github.com/TFMV/avs/internal/store/postgres"
	"github.com/TFMV/avs/internal/weaviate"
)

// openStore connects the configured record store backend.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		st, err := mongo.Open(ctx, mongo.Config{
			URI:               cfg.Store.Mongo.URI,
			Database:          cfg.Store.Mongo.Database,
			AddressCollection: cfg.Store.Mongo.AddressCollection,
			KeyCollection:     cfg.Store.Mongo.KeyCollection,
		})
		if err != nil {
			return nil, err
		}
		return st, nil

	case config.DriverPostgres:
		st, err := postgres.Open(ctx, cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Postgres.MigrateOnStart {
			if err := st.Migrate(ctx); err != nil {
				_ = st.Close(ctx)
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		return st, nil

	case config.DriverWeaviate:
		c, err := weaviate.NewClient(weaviate.Config{
			Host:         cfg.Store.Weaviate.Host,
			Scheme:       cfg.Store.Weaviate.Scheme,
			APIKey:       cfg.Store.Weaviate.APIKey,
			AddressClass: cfg.Store.Weaviate.AddressClass,
			KeyClass:     cfg.Store.Weaviate.KeyClass,
		})
		if err != nil {
			return nil, err
		}
		if err := c.InitSchema(ctx); err != nil {
			return nil, err
		}
		return c, nil

	case config.DriverMemory:
		mem := store.NewMemory()
		if cfg.Store.SeedFile == "" {
			return mem, nil
		}
		rows, err := dataset.ReadFile(cfg.Store.SeedFile, "")
		if err != nil {
			return nil, fmt.Errorf("read seed file: %w", err)
		}
		stats, err := dataset.NewLoader(mem, 0, logger).Load(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("seed memory store: %w", err)
		}
		logger.Info("memory store seeded",
			zap.String("file", cfg.Store.SeedFile),
			zap.Int("inserted", stats.Inserted),
			zap.Int("duplicates", stats.Duplicates),
			zap.Int("invalid", stats.Invalid))
		return mem, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
