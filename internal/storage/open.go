package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "aquabot/pkg/logx"
)

// Store is the persistence API used by links, dedup and bot handlers.
type Store interface {
	UpsertPending(ctx context.Context, l Link) (Link, error)
	MarkLinked(ctx context.Context, companyID, telegramUserID, clientID int64) (Link, bool, error)
	LinkedChatByPhone(ctx context.Context, companyID int64, phone string) (int64, bool, error)
	LinkByTelegramUser(ctx context.Context, companyID, telegramUserID int64) (Link, bool, error)
	PendingLinks(ctx context.Context, companyID int64, limit int) ([]Link, error)
	CountPending(ctx context.Context, companyID int64) (int, error)

	ClaimDedup(ctx context.Context, key string, now time.Time, ttl time.Duration) (bool, error)
	AppendAudit(ctx context.Context, e AuditEntry) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
