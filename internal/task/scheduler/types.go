package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "aquabot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Asia/Krasnoyarsk"
}

// Job is one scheduled unit of work. ctx carries the run timeout.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	running *atomic.Bool
	stats   *runStats
}

type runStats struct {
	mu      sync.Mutex
	runs    uint64
	skipped uint64
	lastErr string
	lastDur time.Duration
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// Base context for job runs; canceled by Stop.
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Runs    uint64
	Skipped uint64
	LastErr string
	LastDur time.Duration
}

type Snapshot struct {
	Enabled   bool
	Timezone  string
	Schedules []ScheduleInfo
}
