package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "aquabot/pkg/logx"
	"aquabot/pkg/phone"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log.With(logx.String("comp", "storage")), now: time.Now, pruneEvery: 500}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	st.log.Info("storage opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const linkColumns = `id, company_id, COALESCE(yclients_client_id, 0), phone, telegram_user_id,
	telegram_chat_id, status, created_at, updated_at, COALESCE(linked_at, 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(r rowScanner) (Link, error) {
	var l Link
	var created, updated, linked int64
	err := r.Scan(&l.ID, &l.CompanyID, &l.ClientID, &l.Phone, &l.TelegramUserID,
		&l.TelegramChatID, &l.Status, &created, &updated, &linked)
	if err != nil {
		return Link{}, err
	}
	l.CreatedAt = time.UnixMilli(created)
	l.UpdatedAt = time.UnixMilli(updated)
	if linked > 0 {
		l.LinkedAt = time.UnixMilli(linked)
	}
	return l, nil
}

// UpsertPending stores the user's phone and chat. An existing row for the
// same user keeps its status; a new row starts as pending.
func (s *sqliteStore) UpsertPending(ctx context.Context, l Link) (Link, error) {
	if s == nil || s.db == nil {
		return Link{}, ErrClosed
	}
	p := phone.Normalize(l.Phone)
	if l.CompanyID <= 0 || p == "" || l.TelegramUserID == 0 || l.TelegramChatID == 0 {
		return Link{}, fmt.Errorf("%w: company=%d phone=%q user=%d chat=%d",
			ErrInvalidInput, l.CompanyID, l.Phone, l.TelegramUserID, l.TelegramChatID)
	}
	now := s.now().UnixMilli()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO clients_link(company_id, phone, telegram_user_id, telegram_chat_id, status, created_at, updated_at)
		 VALUES(?,?,?,?,'pending',?,?)
		 ON CONFLICT(company_id, telegram_user_id) DO UPDATE SET
			phone = excluded.phone,
			telegram_chat_id = excluded.telegram_chat_id,
			updated_at = excluded.updated_at
		 RETURNING `+linkColumns,
		l.CompanyID, p, l.TelegramUserID, l.TelegramChatID, now, now,
	)
	return scanLink(row)
}

func (s *sqliteStore) MarkLinked(ctx context.Context, companyID, telegramUserID, clientID int64) (Link, bool, error) {
	if s == nil || s.db == nil {
		return Link{}, false, ErrClosed
	}
	if companyID <= 0 || telegramUserID == 0 || clientID <= 0 {
		return Link{}, false, ErrInvalidInput
	}
	now := s.now().UnixMilli()
	row := s.db.QueryRowContext(ctx,
		`UPDATE clients_link
		 SET yclients_client_id = ?, status = 'linked', linked_at = ?, updated_at = ?
		 WHERE company_id = ? AND telegram_user_id = ?
		 RETURNING `+linkColumns,
		clientID, now, now, companyID, telegramUserID,
	)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, false, nil
	}
	if err != nil {
		return Link{}, false, err
	}
	return l, true, nil
}

// LinkedChatByPhone returns the most recently updated linked chat for phone.
func (s *sqliteStore) LinkedChatByPhone(ctx context.Context, companyID int64, raw string) (int64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, ErrClosed
	}
	p := phone.Normalize(raw)
	if companyID <= 0 || p == "" {
		return 0, false, nil
	}
	var chatID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT telegram_chat_id FROM clients_link
		 WHERE company_id = ? AND phone = ? AND status = 'linked'
		 ORDER BY updated_at DESC, id DESC LIMIT 1`,
		companyID, p,
	).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return chatID, true, nil
}

func (s *sqliteStore) LinkByTelegramUser(ctx context.Context, companyID, telegramUserID int64) (Link, bool, error) {
	if s == nil || s.db == nil {
		return Link{}, false, ErrClosed
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM clients_link
		 WHERE company_id = ? AND telegram_user_id = ?
		 ORDER BY updated_at DESC, created_at DESC LIMIT 1`,
		companyID, telegramUserID,
	)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, false, nil
	}
	if err != nil {
		return Link{}, false, err
	}
	return l, true, nil
}

// PendingLinks returns up to limit pending rows, oldest first.
func (s *sqliteStore) PendingLinks(ctx context.Context, companyID int64, limit int) ([]Link, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM clients_link
		 WHERE company_id = ? AND status = 'pending'
		 ORDER BY created_at ASC, id ASC LIMIT ?`,
		companyID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountPending(ctx context.Context, companyID int64) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clients_link WHERE company_id = ? AND status = 'pending'`, companyID,
	).Scan(&n)
	return n, err
}

// ClaimDedup inserts key, or takes over an expired row, in one statement.
// It reports false when a live row already holds the key.
func (s *sqliteStore) ClaimDedup(ctx context.Context, key string, now time.Time, ttl time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	if key == "" {
		return true, nil
	}
	nowMS := now.UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until = excluded.until
		 WHERE dedup.until <= ?`,
		key, now.Add(ttl).UnixMilli(), nowMS,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.pruneExpired(pctx, nowMS)
		cancel()
	}
	return n > 0, nil
}

func (s *sqliteStore) pruneExpired(ctx context.Context, nowMS int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, nowMS)
	return err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = s.now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, chat_id, action, target, ok, err, took_ms, meta)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.ActorID, e.ChatID, e.Action, nullStr(e.Target),
		ok, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
