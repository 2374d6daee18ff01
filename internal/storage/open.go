package storage

import (
	"context"
	"fmt"

	"github.com/radif/dropzone/internal/config"
)

// Open builds the Store selected by cfg.StorageDriver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageDriver {
	case config.DriverMinio:
		return NewMinioStore(
			cfg.StorageEndpoint,
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			cfg.StorageRegion,
			cfg.StoragePublicBase,
			cfg.StorageUseSSL,
		)
	case config.DriverS3:
		return NewS3Store(ctx,
			cfg.StorageEndpoint,
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			cfg.StorageRegion,
			cfg.StoragePublicBase,
		)
	case config.DriverMemory:
		return NewMemoryStore(cfg.StoragePublicBase), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
