package storage

import (
	"errors"
	"time"
)

var (
	ErrClosed       = errors.New("storage closed")
	ErrInvalidInput = errors.New("storage: invalid input")
)

type Config struct {
	// Driver is "sqlite" (default).
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

const (
	StatusPending = "pending"
	StatusLinked  = "linked"
)

// Link ties a Telegram user to a phone and, once found, a platform client.
type Link struct {
	ID             int64
	CompanyID      int64
	ClientID       int64
	Phone          string
	TelegramUserID int64
	TelegramChatID int64
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LinkedAt       time.Time
}

// AuditEntry records a user-triggered action such as a confirmation.
type AuditEntry struct {
	At       time.Time
	ActorID  int64
	ChatID   int64
	Action   string
	Target   string
	OK       bool
	Error    string
	TookMS   int64
	MetaJSON string
}
