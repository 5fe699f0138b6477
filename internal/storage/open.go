package storage

import (
	"context"
	"errors"
	"strings"

	"flushq/internal/wire"
	logx "flushq/pkg/logx"
)

// Store persists the latest record per item id.
type Store interface {
	Put(ctx context.Context, r wire.Record) error
	Get(ctx context.Context, id string) (r wire.Record, ok bool, err error)
	// List returns records ordered by submission time. An empty state
	// matches every record.
	List(ctx context.Context, state string) ([]wire.Record, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
