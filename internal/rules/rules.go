// Package rules holds the admin-side alert rules run for every record event.
package rules

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"aquabot/internal/dedup"
	"aquabot/internal/metrics"
	kit "aquabot/internal/transport"
	logx "aquabot/pkg/logx"
)

// Sender queues a chat message. The notifier service satisfies it.
type Sender interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Config struct {
	AdminChat kit.ChatTarget

	Debounce        time.Duration
	ResolvedTTL     time.Duration
	NotConfirmedTTL time.Duration
	CanceledTTL     time.Duration
	NoShowTTL       time.Duration
	NotLinkedTTL    time.Duration
}

func (c Config) withDefaults() Config {
	def := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&c.Debounce, 8*time.Second)
	def(&c.ResolvedTTL, 30*time.Minute)
	def(&c.NotConfirmedTTL, 30*time.Minute)
	def(&c.CanceledTTL, 30*time.Minute)
	def(&c.NoShowTTL, 12*time.Hour)
	def(&c.NotLinkedTTL, 30*time.Minute)
	return c
}

type Deps struct {
	Config Config
	Dedup  dedup.Store
	Sender Sender
	Log    logx.Logger
}

const fireTimeout = 10 * time.Second

type base struct {
	name  string
	cfg   Config
	dedup dedup.Store
	send  Sender
	log   logx.Logger
}

func newBase(name string, d Deps) base {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return base{
		name:  name,
		cfg:   d.Config.withDefaults(),
		dedup: d.Dedup,
		send:  d.Sender,
		log:   log.With(logx.String("rule", name)),
	}
}

func (b *base) Name() string { return b.name }

func (b *base) adminReady() bool {
	if b.cfg.AdminChat.ChatID == 0 {
		b.log.Warn("admin chat not configured")
		return false
	}
	return true
}

// suppressed fails open: a broken dedup backend must not silence alerts.
func (b *base) suppressed(ctx context.Context, key string, ttl time.Duration) bool {
	s, err := b.dedup.ShouldSuppress(ctx, key, ttl)
	if err != nil {
		b.log.Warn("dedup check failed", logx.String("key", key), logx.Err(err))
		return false
	}
	if s {
		b.outcome("suppressed")
	}
	return s
}

func (b *base) notifyAdmin(ctx context.Context, text string) error {
	err := b.send.Notify(ctx, kit.Notification{
		Channel:  "admin",
		Priority: 5,
		Target:   b.cfg.AdminChat,
		Text:     text,
		Options:  &kit.SendOptions{DisablePreview: true},
	})
	if err != nil {
		b.outcome("failed")
		b.log.Error("admin send failed", logx.Err(err))
		return err
	}
	b.outcome("sent")
	return nil
}

func (b *base) outcome(o string) {
	metrics.RuleOutcomesTotal.WithLabelValues(b.name, o).Inc()
}

// catch logs a panic from a timer callback; Handle panics are caught by the engine.
func (b *base) catch(where string) {
	if r := recover(); r != nil {
		b.log.Error("rule panic", logx.String("where", where), logx.Any("panic", fmt.Sprint(r)), logx.Stack(string(debug.Stack())))
	}
}

func fireContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), fireTimeout)
}
