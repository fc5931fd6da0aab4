// Package clientnotify sends the booking lifecycle messages to linked clients.
package clientnotify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"aquabot/internal/debounce"
	"aquabot/internal/dedup"
	"aquabot/internal/metrics"
	"aquabot/internal/record"
	kit "aquabot/internal/transport"
	logx "aquabot/pkg/logx"
	"aquabot/pkg/tgui"
)

type Sender interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Config struct {
	// Updates whose create_date is this close to now count as creations.
	CreateWindow    time.Duration
	DedupTTL        time.Duration
	ChangedDebounce time.Duration
	ChangedTTL      time.Duration
	WidgetID        string
	Footer          Footer
}

func (c Config) withDefaults() Config {
	if c.CreateWindow <= 0 {
		c.CreateWindow = 2 * time.Minute
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 10 * time.Minute
	}
	if c.ChangedDebounce <= 0 {
		c.ChangedDebounce = 10 * time.Second
	}
	if c.ChangedTTL <= 0 {
		c.ChangedTTL = 5 * time.Minute
	}
	c.Footer = c.Footer.withDefaults()
	return c
}

// Class names one kind of client message.
type Class string

const (
	ClassCreate    Class = "create"
	ClassConfirmed Class = "confirmed"
	ClassChanged   Class = "changed"
	ClassCancel    Class = "cancel"
)

type Dispatcher struct {
	cfg     Config
	dedup   dedup.Store
	tracker *record.Tracker
	send    Sender
	log     logx.Logger
	now     func() time.Time
	changed *debounce.Scheduler[record.Delivery]
}

type Option func(*Dispatcher)

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

func New(cfg Config, store dedup.Store, tracker *record.Tracker, send Sender, log logx.Logger, opts ...Option) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		cfg:     cfg.withDefaults(),
		dedup:   store,
		tracker: tracker,
		send:    send,
		log:     log.With(logx.String("comp", "client_notify")),
		now:     time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	d.changed = debounce.New[record.Delivery](d.fireChanged)
	return d
}

func (d *Dispatcher) Name() string { return "client_notify" }

// Handle sends at most one message per class. Priority: cancel, create,
// confirmed transition, change. Confirmed and change may both fire.
func (d *Dispatcher) Handle(ctx context.Context, del *record.Delivery) {
	ev := del.Event
	if !ev.IsRecord() || ev.Data == nil || del.ChatID == 0 {
		return
	}
	key := "rec:" + ev.Key().String()
	prev, hasPrev := d.tracker.Get(key)
	hash := ev.Data.Snapshot().Hash()
	cur := record.State{SnapshotHash: hash, Confirmed: ev.Data.Confirmed}

	if ev.IsCanceled() {
		d.changed.Cancel(key)
		d.sendOnce(ctx, ClassCancel, key, del.ChatID, statusText(titleCanceled, ev.Data, ev.RecordLink()), nil)
		d.tracker.MarkDeleted(key)
		return
	}

	if ev.IsNew(d.now(), d.cfg.CreateWindow) {
		payload := strconv.FormatInt(ev.CompanyID.Int64(), 10) + ":" + strconv.FormatInt(ev.RecordID(), 10)
		kb := tgui.NewInline().Row(tgui.Btn(ConfirmButtonText, tgui.Data("rec", "confirm", payload))).Rows()
		text := createText(ev.Data, d.cfg.Footer, ev.RecordLink(), ev.ReviewLink(d.cfg.WidgetID))
		d.sendOnce(ctx, ClassCreate, key, del.ChatID, text, kb)
		d.tracker.Set(key, cur)
		return
	}

	// An unseen record counts as unconfirmed, so a first sighting that is
	// already confirmed still gets its message.
	if prev.Confirmed.IsFalse() && ev.Data.Confirmed.IsTrue() {
		d.sendOnce(ctx, ClassConfirmed, key, del.ChatID, statusText(titleConfirmed, ev.Data, ev.RecordLink()), nil)
	}

	if hasPrev && prev.SnapshotHash != "" && prev.SnapshotHash != hash {
		d.changed.Schedule(key, d.cfg.ChangedDebounce, *del)
	}

	d.tracker.Set(key, cur)
}

func (d *Dispatcher) fireChanged(key string, del record.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("changed notice panic", logx.Any("panic", fmt.Sprint(r)))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ev := del.Event
	d.sendOnceTTL(ctx, ClassChanged, key, d.cfg.ChangedTTL, del.ChatID, statusText(titleChanged, ev.Data, ev.RecordLink()), nil)
}

func (d *Dispatcher) sendOnce(ctx context.Context, class Class, key string, chatID int64, text string, kb [][]kit.InlineButton) {
	d.sendOnceTTL(ctx, class, key, d.cfg.DedupTTL, chatID, text, kb)
}

func (d *Dispatcher) sendOnceTTL(ctx context.Context, class Class, key string, ttl time.Duration, chatID int64, text string, kb [][]kit.InlineButton) {
	dk := "client:" + string(class) + ":" + key
	suppressed, err := d.dedup.ShouldSuppress(ctx, dk, ttl)
	if err != nil {
		d.log.Warn("dedup check failed", logx.String("key", dk), logx.Err(err))
	}
	if suppressed {
		metrics.ClientMessagesTotal.WithLabelValues(string(class), "suppressed").Inc()
		return
	}
	err = d.send.Notify(ctx, kit.Notification{
		Channel:  "client",
		Priority: 7,
		Target:   kit.ChatTarget{ChatID: chatID},
		Text:     text,
		Options:  &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, Inline: kb},
	})
	if err != nil {
		metrics.ClientMessagesTotal.WithLabelValues(string(class), "failed").Inc()
		d.log.Error("client send failed", logx.String("class", string(class)), logx.Int64("chat_id", chatID), logx.Err(err))
		return
	}
	metrics.ClientMessagesTotal.WithLabelValues(string(class), "sent").Inc()
	d.log.Info("client notified", logx.String("class", string(class)), logx.String("record", key))
}

func (d *Dispatcher) Reset() { d.changed.Reset() }
func (d *Dispatcher) Stop()  { d.changed.Stop() }
