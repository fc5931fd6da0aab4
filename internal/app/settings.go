package app

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"aquabot/internal/clientnotify"
	"aquabot/internal/config"
	"aquabot/internal/confirm"
	"aquabot/internal/engine"
	"aquabot/internal/links"
	"aquabot/internal/notifier"
	"aquabot/internal/rules"
	"aquabot/internal/storage"
	"aquabot/internal/task/scheduler"
	kit "aquabot/internal/transport"
	telegram "aquabot/internal/transport/telegram/adapter"
	"aquabot/internal/webhook"
	"aquabot/internal/yclients"
	logx "aquabot/pkg/logx"
)

const (
	defaultStoragePath     = "data/aquabot.db"
	defaultRecheckInterval = "120s"
	defaultLockTTL         = 45 * time.Second
	defaultDedupPrefix     = "aquabot:"
)

// settings is the config file translated into component configs.
type settings struct {
	AdminChat  kit.ChatTarget
	AdminUsers []int64
	Location   *time.Location

	Log       logx.Config
	Telegram  telegram.Config
	Webhook   webhook.Config
	Yclients  yclients.Config
	Engine    engine.Config
	Confirm   confirm.Config
	Notifier  notifier.Config
	Links     links.Config
	Storage   storage.Config
	Scheduler scheduler.Config

	DedupBackend    string
	DedupPrefix     string
	LockTTL         time.Duration
	RecheckInterval string
}

func mapSettings(cfg *config.Config) (settings, error) {
	if cfg == nil {
		return settings{}, fmt.Errorf("config is nil")
	}
	var d config.Durations
	admin := kit.ChatTarget{ChatID: cfg.Telegram.AdminChatID, ThreadID: cfg.Telegram.AdminThreadID}

	s := settings{
		AdminChat:  admin,
		AdminUsers: slices.Clone(cfg.Telegram.AdminUserIDs),
		Log:        mapLogging(cfg),
		Telegram: telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: d.Get("telegram.poll_timeout", cfg.Telegram.PollTimeout),
		},
		Webhook: webhook.Config{
			Addr:    cfg.Webhook.Addr,
			Path:    cfg.Webhook.Path,
			DumpDir: cfg.Webhook.DumpDir,
			MaxBody: cfg.Webhook.MaxBody,
			Metrics: cfg.Metrics.Enabled,
			Pprof:   webhook.PprofConfig{Enabled: cfg.Webhook.Pprof, Token: cfg.Webhook.PprofToken},
		},
		Yclients: yclients.Config{
			BaseURL:      cfg.Yclients.BaseURL,
			PartnerToken: cfg.Yclients.PartnerToken,
			UserToken:    cfg.Yclients.UserToken,
			Timeout:      d.Get("yclients.timeout", cfg.Yclients.Timeout),
			RatePerSec:   float64(cfg.Yclients.RatePerSec),
		},
		Engine: engine.Config{
			Rules: rules.Config{
				AdminChat:       admin,
				Debounce:        d.Get("rules.debounce", cfg.Rules.Debounce),
				ResolvedTTL:     d.Get("rules.resolved_ttl", cfg.Rules.ResolvedTTL),
				NotConfirmedTTL: d.Get("rules.not_confirmed_ttl", cfg.Rules.NotConfirmedTTL),
				CanceledTTL:     d.Get("rules.canceled_ttl", cfg.Rules.CanceledTTL),
				NoShowTTL:       d.Get("rules.no_show_ttl", cfg.Rules.NoShowTTL),
				NotLinkedTTL:    d.Get("rules.not_linked_ttl", cfg.Rules.NotLinkedTTL),
			},
			Client: clientnotify.Config{
				CreateWindow:    d.Get("client.create_window", cfg.Client.CreateWindow),
				DedupTTL:        d.Get("client.dedup_ttl", cfg.Client.DedupTTL),
				ChangedDebounce: d.Get("client.changed_debounce", cfg.Client.ChangedDebounce),
				ChangedTTL:      d.Get("client.changed_ttl", cfg.Client.ChangedTTL),
				WidgetID:        cfg.Yclients.WidgetID,
				Footer: clientnotify.Footer{
					Entrance:   cfg.Client.Entrance,
					YandexMaps: cfg.Client.YandexMaps,
					Gis:        cfg.Client.Gis,
				},
			},
		},
		Confirm: confirm.Config{SetVisitAttendance: cfg.Yclients.SetVisitAttendance},
		Notifier: notifier.Config{
			Workers:       cfg.Notifier.Workers,
			QueueSize:     cfg.Notifier.QueueSize,
			RatePerSec:    cfg.Notifier.RatePerSec,
			RetryMax:      cfg.Notifier.RetryMax,
			RetryBase:     d.Get("notifier.retry_base", cfg.Notifier.RetryBase),
			RetryMaxDelay: d.Get("notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay),
		},
		Links: links.Config{
			CompanyID: cfg.Yclients.CompanyID,
			AdminChat: admin,
			BatchSize: cfg.Links.BatchSize,
			Throttle:  d.Get("links.throttle", cfg.Links.Throttle),
			Region:    strings.ToUpper(cfg.Links.Region),
		},
		Storage: storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: d.Get("storage.busy_timeout", cfg.Storage.BusyTimeout),
		},
		Scheduler: scheduler.Config{Enabled: true, Timezone: cfg.Scheduler.Timezone},

		DedupBackend:    cfg.Dedup.Backend,
		DedupPrefix:     cfg.Dedup.Prefix,
		LockTTL:         d.Get("redis.lock_ttl", cfg.Redis.LockTTL),
		RecheckInterval: strings.TrimSpace(cfg.Links.RecheckInterval),
	}
	if err := d.Err(); err != nil {
		return settings{}, err
	}

	if s.Storage.Driver == "" {
		s.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(s.Storage.Path) == "" {
		s.Storage.Path = defaultStoragePath
	}
	if s.DedupBackend == "" {
		s.DedupBackend = "memory"
	}
	if s.DedupPrefix == "" {
		s.DedupPrefix = defaultDedupPrefix
	}
	if s.LockTTL <= 0 {
		s.LockTTL = defaultLockTTL
	}
	if s.RecheckInterval == "" {
		s.RecheckInterval = defaultRecheckInterval
	}
	if _, err := scheduler.ParseSchedule(s.RecheckInterval); err != nil {
		return settings{}, fmt.Errorf("links.recheck_interval: %w", err)
	}

	s.Location = time.Local
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return settings{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
		s.Location = loc
	}
	return s, nil
}

func mapLogging(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     cfg.Telegram.AdminChatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}
