package store

import (
	"context"
	"fmt"
	"strings"
)

// DriverConfig selects and configures a KVStore backend.
type DriverConfig struct {
	Driver      string
	Dir         string
	DatabaseURL string
	Redis       RedisConfig
}

// Open builds the backend named by cfg.Driver: memory, file, postgres or redis.
func Open(ctx context.Context, cfg DriverConfig) (KVStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryKVStore(), nil
	case "file":
		return NewFileKVStore(cfg.Dir)
	case "postgres":
		return ConnectPostgresKVStore(ctx, cfg.DatabaseURL)
	case "redis":
		return NewRedisKVStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}
