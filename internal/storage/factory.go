package storage

import (
	"context"

	kerr "github.com/hyperjump/kioku/pkg/errors"
)

const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Options selects and configures a RecordStore backend.
type Options struct {
	Backend    string
	Redis      RedisConfig
	SQLitePath string
}

// NewRecordStore opens the configured backend. Empty backend defaults to redis.
func NewRecordStore(ctx context.Context, opts Options) (RecordStore, error) {
	switch opts.Backend {
	case BackendRedis, "":
		return NewRedisStore(ctx, opts.Redis)
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	default:
		return nil, kerr.New(kerr.CodeStoreBackendUnsupported, "unknown store backend (supported: redis, sqlite)",
			kerr.Field("backend", opts.Backend))
	}
}
