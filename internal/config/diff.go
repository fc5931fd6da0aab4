package config

import (
	"reflect"

	logx "aquabot/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ and log-safe fields
// describing them. Secrets are reported only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	section := func(name string, differ bool, fields ...logx.Field) {
		if !differ {
			return
		}
		changed = append(changed, name)
		attrs = append(attrs, fields...)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	section("telegram", ot.Token != nt.Token || ot.AdminChatID != nt.AdminChatID ||
		ot.AdminThreadID != nt.AdminThreadID || ot.PollTimeout != nt.PollTimeout,
		logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		logx.Int64("telegram.admin_chat_id", nt.AdminChatID),
		logx.String("telegram.poll_timeout", nt.PollTimeout),
	)

	section("logging", oldCfg.Logging != newCfg.Logging,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.console", newCfg.Logging.Console),
		logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
	)

	ow, nw := oldCfg.Webhook, newCfg.Webhook
	section("webhook", ow != nw,
		logx.String("webhook.addr", nw.Addr),
		logx.String("webhook.path", nw.Path),
		logx.Bool("webhook.dump", nw.DumpDir != ""),
		logx.Bool("webhook.pprof", nw.Pprof),
		logx.Bool("webhook.pprof_token_set", nw.PprofToken != ""),
	)

	oy, ny := oldCfg.Yclients, newCfg.Yclients
	section("yclients", oy != ny,
		logx.Int64("yclients.company_id", ny.CompanyID),
		logx.String("yclients.timeout", ny.Timeout),
		logx.Bool("yclients.tokens_changed", oy.PartnerToken != ny.PartnerToken || oy.UserToken != ny.UserToken),
	)

	section("rules", oldCfg.Rules != newCfg.Rules,
		logx.String("rules.debounce", newCfg.Rules.Debounce))
	section("client", oldCfg.Client != newCfg.Client,
		logx.String("client.create_window", newCfg.Client.CreateWindow),
		logx.String("client.changed_debounce", newCfg.Client.ChangedDebounce))
	section("dedup", oldCfg.Dedup != newCfg.Dedup,
		logx.String("dedup.backend", newCfg.Dedup.Backend))

	or, nr := oldCfg.Redis, newCfg.Redis
	section("redis", or != nr,
		logx.String("redis.addr", nr.Addr),
		logx.Int("redis.db", nr.DB),
		logx.Bool("redis.password_set", nr.Password != ""),
	)

	section("storage", oldCfg.Storage != newCfg.Storage,
		logx.String("storage.driver", newCfg.Storage.Driver),
		logx.String("storage.path", newCfg.Storage.Path))
	section("notifier", !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier),
		logx.Int("notifier.workers", newCfg.Notifier.Workers),
		logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec))
	section("links", oldCfg.Links != newCfg.Links,
		logx.String("links.recheck_interval", newCfg.Links.RecheckInterval),
		logx.Int("links.batch_size", newCfg.Links.BatchSize))
	section("metrics", oldCfg.Metrics != newCfg.Metrics,
		logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	section("scheduler", oldCfg.Scheduler != newCfg.Scheduler,
		logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))

	return changed, attrs
}

// RestartRequired reports changes that only take effect after a restart.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		out = append(out, "telegram")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if oldCfg.Dedup != newCfg.Dedup || oldCfg.Redis != newCfg.Redis {
		out = append(out, "dedup")
	}
	if oldCfg.Yclients != newCfg.Yclients {
		out = append(out, "yclients")
	}
	if oldCfg.Rules != newCfg.Rules || oldCfg.Client != newCfg.Client {
		out = append(out, "engine")
	}
	return out
}
