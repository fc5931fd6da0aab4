package config

// Config is the whole file. Durations are Go duration strings ("8s", "2m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Webhook   WebhookConfig   `json:"webhook"`
	Yclients  YclientsConfig  `json:"yclients"`
	Rules     RulesConfig     `json:"rules"`
	Client    ClientConfig    `json:"client"`
	Dedup     DedupConfig     `json:"dedup"`
	Storage   StorageConfig   `json:"storage"`
	Notifier  NotifierConfig  `json:"notifier"`
	Links     LinksConfig     `json:"links"`
	Metrics   MetricsConfig   `json:"metrics"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Redis     RedisConfig     `json:"redis"`
}

type TelegramConfig struct {
	Token string `json:"token" validate:"required"`
	// AdminChatID receives staff alerts and link notices.
	AdminChatID   int64  `json:"admin_chat_id" validate:"required"`
	AdminThreadID int    `json:"admin_thread_id,omitempty" validate:"gte=0"`
	// AdminUserIDs may use admin commands from any chat.
	AdminUserIDs []int64 `json:"admin_user_ids,omitempty" validate:"dive,gt=0"`
	PollTimeout  string  `json:"poll_timeout" validate:"omitempty,duration"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

// LoggingTelegram mirrors warnings into the admin chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id" validate:"gte=0"`
	MinLevel   string `json:"min_level" validate:"omitempty,oneof=trace debug info warn error"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

type WebhookConfig struct {
	Addr    string `json:"addr" validate:"omitempty,hostname_port"`
	Path    string `json:"path"`
	DumpDir string `json:"dump_dir,omitempty"`
	MaxBody int64  `json:"max_body,omitempty" validate:"gte=0"`
	// PprofToken protects /debug/pprof; the routes are off when Pprof is false.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"`
}

type YclientsConfig struct {
	BaseURL      string `json:"base_url" validate:"omitempty,url"`
	CompanyID    int64  `json:"company_id" validate:"required,gt=0"`
	PartnerToken string `json:"partner_token" validate:"required"`
	UserToken    string `json:"user_token" validate:"required"`
	Timeout      string `json:"timeout" validate:"omitempty,duration"`
	RatePerSec   int    `json:"rate_per_sec" validate:"gte=0"`
	// WidgetID builds review links when the platform sends none.
	WidgetID string `json:"widget_id,omitempty"`
	// SetVisitAttendance also writes visit_attendance=2 on confirmation.
	SetVisitAttendance bool `json:"set_visit_attendance,omitempty"`
}

type RulesConfig struct {
	Debounce        string `json:"debounce" validate:"omitempty,duration"`
	ResolvedTTL     string `json:"resolved_ttl" validate:"omitempty,duration"`
	NotConfirmedTTL string `json:"not_confirmed_ttl" validate:"omitempty,duration"`
	CanceledTTL     string `json:"canceled_ttl" validate:"omitempty,duration"`
	NoShowTTL       string `json:"no_show_ttl" validate:"omitempty,duration"`
	NotLinkedTTL    string `json:"not_linked_ttl" validate:"omitempty,duration"`
}

type ClientConfig struct {
	CreateWindow    string `json:"create_window" validate:"omitempty,duration"`
	DedupTTL        string `json:"dedup_ttl" validate:"omitempty,duration"`
	ChangedDebounce string `json:"changed_debounce" validate:"omitempty,duration"`
	ChangedTTL      string `json:"changed_ttl" validate:"omitempty,duration"`
	Entrance        string `json:"entrance,omitempty"`
	YandexMaps      string `json:"yandex_maps,omitempty" validate:"omitempty,url"`
	Gis             string `json:"gis,omitempty" validate:"omitempty,url"`
}

// DedupConfig picks where "already sent" marks live.
type DedupConfig struct {
	Backend string `json:"backend" validate:"omitempty,oneof=memory redis sqlite"`
	Prefix  string `json:"prefix,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty" validate:"gte=0"`
	// LockTTL bounds how long a confirmation may hold the record lock.
	LockTTL string `json:"lock_ttl,omitempty" validate:"omitempty,duration"`
}

type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty" validate:"omitempty,duration"`
}

type NotifierConfig struct {
	Workers       int    `json:"workers" validate:"gte=0"`
	QueueSize     int    `json:"queue_size" validate:"gte=0"`
	RatePerSec    int    `json:"rate_per_sec" validate:"gte=0"`
	RetryMax      int    `json:"retry_max" validate:"gte=0"`
	RetryBase     string `json:"retry_base" validate:"omitempty,duration"`
	RetryMaxDelay string `json:"retry_max_delay" validate:"omitempty,duration"`
}

type LinksConfig struct {
	RecheckInterval string `json:"recheck_interval" validate:"omitempty"`
	BatchSize       int    `json:"batch_size" validate:"gte=0"`
	Throttle        string `json:"throttle" validate:"omitempty,duration"`
	Region          string `json:"region,omitempty" validate:"omitempty,len=2"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

type SchedulerConfig struct {
	Timezone string `json:"timezone,omitempty"`
}
