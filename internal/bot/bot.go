// Package bot implements the client-facing Telegram commands, the contact
// flow and the record confirmation button.
package bot

import (
	"context"
	"time"

	"aquabot/internal/confirm"
	"aquabot/internal/links"
	"aquabot/internal/storage"
	kit "aquabot/internal/transport"
	"aquabot/internal/transport/telegram/router"
	"aquabot/internal/yclients"
	logx "aquabot/pkg/logx"
)

type Links interface {
	LinkOf(ctx context.Context, telegramUserID int64) (storage.Link, bool, error)
	Contact(ctx context.Context, c links.Contact) (links.ContactResult, error)
	ReportContactError(ctx context.Context, userID int64, err error)
}

type Records interface {
	ListRecords(ctx context.Context, q yclients.ListQuery) ([]yclients.Record, error)
}

type Confirmer interface {
	Confirm(ctx context.Context, req confirm.Request) (confirm.Result, error)
}

// Store covers the admin listing and the audit trail.
type Store interface {
	PendingLinks(ctx context.Context, companyID int64, limit int) ([]storage.Link, error)
	CountPending(ctx context.Context, companyID int64) (int, error)
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Sender interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// Commands lists what the router has registered, for /help.
type Commands interface {
	Commands(admin bool) []router.Command
	IsAdmin(chatID, userID int64) bool
}

type Deps struct {
	CompanyID int64
	AdminChat kit.ChatTarget
	// Location decides what "today" is for /record.
	Location *time.Location

	Links   Links
	Records Records
	Confirm Confirmer
	Store   Store
	Notify  Sender
	// Recheck triggers the pending-links job; nil hides /recheck.
	Recheck func() bool

	Log logx.Logger
	Now func() time.Time
}

type Handlers struct {
	d   Deps
	log logx.Logger
}

const (
	recordTimeout  = 20 * time.Second
	confirmTimeout = 30 * time.Second
)

func New(d Deps) *Handlers {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	return &Handlers{d: d, log: d.Log.With(logx.String("comp", "bot"))}
}

// Registry wires every handler into a router registry.
func (h *Handlers) Registry(cmds Commands) router.Registry {
	reg := router.Registry{
		Commands: []router.Command{
			{Name: "start", Description: "Начать и привязать номер", Handle: h.start},
			{Name: "help", Description: "Список команд", Handle: h.help(cmds)},
			{Name: "phone", Aliases: []string{"number"}, Description: "Отправить номер телефона", Handle: h.phone},
			{Name: "record", Description: "Моя ближайшая запись", Timeout: recordTimeout, Handle: h.record},
		},
		Callbacks: []router.CallbackRoute{
			{Scope: "rec", Action: "confirm", Timeout: confirmTimeout, Handle: h.confirmRecord},
		},
		Contact: h.contact,
	}
	if h.d.Store != nil {
		reg.Commands = append(reg.Commands, router.Command{
			Name: "pending", Description: "Ожидающие привязки", Access: router.AccessAdmin, Handle: h.pending,
		})
	}
	if h.d.Recheck != nil {
		reg.Commands = append(reg.Commands, router.Command{
			Name: "recheck", Description: "Перепроверить ожидающие привязки", Access: router.AccessAdmin, Handle: h.recheck,
		})
	}
	return reg
}

// reply ignores send errors; the router logs the handler outcome instead.
func (h *Handlers) reply(ctx context.Context, req *router.Request, text string, opt *kit.SendOptions) {
	if _, err := req.Reply(ctx, text, opt); err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
}
