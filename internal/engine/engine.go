// Package engine routes record events to the admin rules and the client dispatcher.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"aquabot/internal/clientnotify"
	"aquabot/internal/dedup"
	"aquabot/internal/metrics"
	"aquabot/internal/record"
	"aquabot/internal/rules"
	kit "aquabot/internal/transport"
	logx "aquabot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("engine: queue full")
	ErrStopped   = errors.New("engine: stopped")
)

// Sender queues chat messages.
type Sender interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// LinkResolver finds the client chat linked to a phone.
type LinkResolver interface {
	LinkedChat(ctx context.Context, companyID int64, phone string) (int64, bool, error)
}

type Config struct {
	Rules     rules.Config
	Client    clientnotify.Config
	QueueSize int
	// How long a record's last state is kept without new events.
	TrackerTTL time.Duration
}

// Stores splits dedup ledgers so admin and client windows sweep independently.
type Stores struct {
	Rules  dedup.Store
	Client dedup.Store
}

// MemoryStores returns in-process ledgers with the usual sweep thresholds.
func MemoryStores() Stores {
	return Stores{
		Rules:  dedup.NewMemory(dedup.WithSweepThreshold(5000)),
		Client: dedup.NewMemory(dedup.WithSweepThreshold(10000)),
	}
}

type lifecycle interface {
	Reset()
	Stop()
}

// Engine owns every piece of per-record state. One instance per process.
type Engine struct {
	log     logx.Logger
	links   LinkResolver
	stores  Stores
	tracker *record.Tracker

	admin     []record.Consumer
	notLinked record.Consumer
	client    record.Consumer
	timers    []lifecycle

	queue chan record.Event
	done  chan struct{}
}

func New(cfg Config, stores Stores, send Sender, links LinkResolver, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "engine"))
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	deps := rules.Deps{Config: cfg.Rules, Dedup: stores.Rules, Sender: send, Log: log}

	missing := rules.NewMissingPhone(deps)
	notConfirmed := rules.NewNotConfirmed(deps)
	notLinked := rules.NewNotLinked(deps, links)
	tracker := record.NewTracker(cfg.TrackerTTL, 0, nil)
	client := clientnotify.New(cfg.Client, stores.Client, tracker, send, log)

	return &Engine{
		log:     log,
		links:   links,
		stores:  stores,
		tracker: tracker,
		admin: []record.Consumer{
			missing,
			notConfirmed,
			rules.NewCanceled(deps),
			rules.NewNoShow(deps),
		},
		notLinked: notLinked,
		client:    client,
		timers:    []lifecycle{missing, notConfirmed, notLinked, client},
		queue:     make(chan record.Event, cfg.QueueSize),
		done:      make(chan struct{}),
	}
}

// Enqueue hands ev to the worker without blocking.
func (e *Engine) Enqueue(ev record.Event) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.queue <- ev:
		return nil
	default:
		metrics.WebhookQueueDropped.Inc()
		return ErrQueueFull
	}
}

// Run drains the queue until ctx ends. Events are processed one at a time.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return nil
		case ev := <-e.queue:
			e.Process(ctx, ev)
		}
	}
}

// Process fans ev out to the consumers. It never fails; problems are logged.
func (e *Engine) Process(ctx context.Context, ev record.Event) {
	log := e.log.With(logx.String("delivery", ev.DeliveryID))
	if ev.Resource == "" {
		log.Debug("event without resource skipped")
		return
	}
	if !ev.IsRecord() {
		log.Info("unsupported resource", logx.String("resource", ev.Resource), logx.String("status", ev.Status))
		return
	}

	if ev.Data == nil {
		log.Warn("record without data skipped",
			logx.Int64("company_id", ev.CompanyID.Int64()),
			logx.Int64("resource_id", ev.ResourceID.Int64()))
		return
	}

	d := &record.Delivery{Event: ev, Phone: ev.Data.Phone()}
	for _, c := range e.admin {
		e.dispatch(ctx, c, d)
	}

	if ev.CompanyID == 0 || ev.ResourceID == 0 {
		log.Warn("bad record payload",
			logx.Int64("company_id", ev.CompanyID.Int64()),
			logx.Int64("resource_id", ev.ResourceID.Int64()))
		return
	}
	if d.Phone == "" || e.links == nil {
		return
	}

	chatID, ok, err := e.links.LinkedChat(ctx, ev.CompanyID.Int64(), d.Phone)
	if err != nil {
		log.Error("linked chat lookup failed", logx.Err(err))
		return
	}
	if !ok {
		e.dispatch(ctx, e.notLinked, d)
		return
	}
	d.ChatID = chatID
	e.dispatch(ctx, e.client, d)
	log.Debug("client notifications processed",
		logx.Int64("record_id", ev.RecordID()),
		logx.Int64("chat_id", chatID),
		logx.String("status", ev.Status))
}

// dispatch isolates consumers: a panic in one never stops the others.
func (e *Engine) dispatch(ctx context.Context, c record.Consumer, d *record.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("consumer panic",
				logx.String("consumer", c.Name()),
				logx.Any("panic", fmt.Sprint(r)),
				logx.Stack(string(debug.Stack())))
		}
	}()
	c.Handle(ctx, d)
}

// Reset clears timers, snapshots and in-memory dedup ledgers.
func (e *Engine) Reset() {
	for _, t := range e.timers {
		t.Reset()
	}
	e.tracker.Reset()
	for _, s := range []dedup.Store{e.stores.Rules, e.stores.Client} {
		if m, ok := s.(*dedup.Memory); ok {
			m.Reset()
		}
	}
}

// Stop cancels pending timers and ends Run. Safe to call once.
func (e *Engine) Stop() {
	select {
	case <-e.done:
		return
	default:
		close(e.done)
	}
	for _, t := range e.timers {
		t.Stop()
	}
}

// QueueLen reports events waiting for the worker.
func (e *Engine) QueueLen() int { return len(e.queue) }
