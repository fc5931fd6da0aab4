// Package router turns Telegram updates into handler calls: slash commands,
// inline-button callbacks and shared contacts. Handlers run on a bounded
// worker pool behind panic recovery, request logging and a timeout.
package router

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "aquabot/internal/runtime/supervisor"
	kit "aquabot/internal/transport"
	logx "aquabot/pkg/logx"
	"aquabot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessAdmin allows the admin chat and the listed admin users.
	AccessAdmin
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Access      Access
	// Hidden commands stay out of the Telegram menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  HandlerFunc
}

type Registry struct {
	Commands  []Command
	Callbacks []CallbackRoute
	// Contact handles phone numbers shared through the contact button.
	Contact HandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	Command  string
	Args     []string
	Payload  string
	Contact  *kit.Contact
	Callback *kit.Callback
	ReqID    string

	Adapter kit.Adapter
	Logger  logx.Logger

	answered bool
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

// Answer responds to the callback. Only the first call reaches Telegram;
// the router answers silently for handlers that never call it.
func (r *Request) Answer(ctx context.Context, ans kit.CallbackAnswer) error {
	if r.Callback == nil || r.answered {
		return nil
	}
	r.answered = true
	return r.Adapter.AnswerCallback(ctx, r.Callback.ID, ans)
}

// Message is the message carrying the pressed button.
func (r *Request) Message() kit.MessageRef {
	if r.Callback == nil {
		return kit.MessageRef{}
	}
	return kit.MessageRef{ChatID: r.Callback.ChatID, ThreadID: r.Callback.ThreadID, MessageID: r.Callback.MessageID}
}

type Config struct {
	AdminChatID  int64
	AdminUserIDs []int64
	Workers      int
	QueueSize    int
	// LegacyCallbacks maps an old "prefix:" data form to "scope:action".
	LegacyCallbacks map[string]string
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter

	mu        sync.RWMutex
	cfg       Config
	commands  map[string]*Command
	callbacks map[string]CallbackRoute
	contact   HandlerFunc
	menu      []kit.BotCommand

	jobs chan func()
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Router{
		log:       log.With(logx.String("comp", "router")),
		adapter:   adapter,
		cfg:       cfg,
		commands:  map[string]*Command{},
		callbacks: map[string]CallbackRoute{},
		jobs:      make(chan func(), cfg.QueueSize),
	}
}

// SetAdmins swaps the admin chat and users, e.g. after a config reload.
func (r *Router) SetAdmins(chatID int64, userIDs []int64) {
	r.mu.Lock()
	r.cfg.AdminChatID = chatID
	r.cfg.AdminUserIDs = slices.Clone(userIDs)
	r.mu.Unlock()
}

func (r *Router) SetRegistry(reg Registry) {
	cmds := map[string]*Command{}
	for i := range reg.Commands {
		c := reg.Commands[i]
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		cmds[name] = &c
		for _, a := range c.Aliases {
			if a = sanitizeTelegramCommand(a); a != "" {
				if _, taken := cmds[a]; !taken {
					cmds[a] = &c
				}
			}
		}
	}
	cbs := map[string]CallbackRoute{}
	for _, cb := range reg.Callbacks {
		if cb.Scope == "" || cb.Action == "" || cb.Handle == nil {
			continue
		}
		cbs[cb.Scope+":"+cb.Action] = cb
	}

	r.mu.Lock()
	r.commands, r.callbacks, r.contact = cmds, cbs, reg.Contact
	r.menu = buildMenu(reg.Commands)
	r.mu.Unlock()
}

// Commands lists the registered commands visible at the given access level.
func (r *Router) Commands(admin bool) []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[*Command]bool{}
	var out []Command
	for _, c := range r.commands {
		if seen[c] || (c.Access == AccessAdmin && !admin) {
			continue
		}
		seen[c] = true
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Command) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// IsAdmin reports whether a request from chatID/userID has admin access.
func (r *Router) IsAdmin(chatID, userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cfg.AdminChatID != 0 && chatID == r.cfg.AdminChatID {
		return true
	}
	return slices.Contains(r.cfg.AdminUserIDs, userID)
}

// PublishMenu pushes the public command list to adapters that support it.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	r.mu.RLock()
	menu := slices.Clone(r.menu)
	r.mu.RUnlock()
	return up.UpdateMenuCommands(ctx, menu)
}

// Run consumes updates until ctx ends or the channel closes, then drains
// queued jobs for a short grace period.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(r.log))
	r.mu.RLock()
	workers := r.cfg.Workers
	r.mu.RUnlock()
	for i := 0; i < workers; i++ {
		sup.GoRestart("router.worker", func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("router started", logx.Int("workers", workers))

	defer func() {
		close(r.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Wait(wctx)
		sup.Cancel()
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

// Route dispatches one update onto the worker pool.
func (r *Router) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateContact:
		r.routeContact(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	r.mu.RLock()
	cmd := r.commands[name]
	r.mu.RUnlock()
	if cmd == nil {
		return
	}
	req := r.newRequest(up, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, msg.FromID, "/"+cmd.Name)
	req.Args = args
	if cmd.Access == AccessAdmin && !r.IsAdmin(msg.ChatID, msg.FromID) {
		req.Logger.Info("admin command refused")
		return
	}
	r.enqueue(ctx, req, cmd.Handle, cmd.Timeout, nil)
}

func (r *Router) routeContact(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil || msg.Contact == nil {
		return
	}
	r.mu.RLock()
	h := r.contact
	r.mu.RUnlock()
	if h == nil {
		return
	}
	req := r.newRequest(up, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, msg.FromID, "contact")
	req.Contact = msg.Contact
	r.enqueue(ctx, req, h, 0, nil)
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	r.mu.RLock()
	data := normalizeLegacy(cb.Data, r.cfg.LegacyCallbacks)
	r.mu.RUnlock()

	scope, action, payload, err := tgui.ParseData(data)
	if err != nil {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, kit.CallbackAnswer{})
		return
	}
	r.mu.RLock()
	route, ok := r.callbacks[scope+":"+action]
	r.mu.RUnlock()
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, kit.CallbackAnswer{})
		return
	}

	req := r.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, "cb:"+scope+":"+action)
	req.Callback = cb
	req.Payload = payload
	if route.Access == AccessAdmin && !r.IsAdmin(cb.ChatID, cb.FromID) {
		_ = req.Answer(ctx, kit.CallbackAnswer{Text: "⛔"})
		return
	}
	r.enqueue(ctx, req, route.Handle, route.Timeout, func() {
		_ = req.Answer(ctx, kit.CallbackAnswer{})
	})
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

func (r *Router) enqueue(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration, after func()) {
	final := Chain(h, MWPanicRecover(), MWRequestLog(), MWTimeout(timeout))
	job := func() {
		_ = final(ctx, req)
		if after != nil {
			after()
		}
	}
	select {
	case r.jobs <- job:
	default:
		req.Logger.Warn("router queue full")
		if req.Callback != nil {
			_ = req.Answer(ctx, kit.CallbackAnswer{Text: "⏳ Бот занят, попробуйте ещё раз"})
		}
	}
}

// parseCommand splits "/name@bot arg1 arg2" into its lowercased name and args.
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)
	if name == "" {
		return "", nil, false
	}
	return name, fields[1:], true
}

// normalizeLegacy rewrites "old:payload" to "scope:action:payload" for
// buttons sent by earlier versions.
func normalizeLegacy(data string, legacy map[string]string) string {
	data = strings.TrimSpace(data)
	for old, cur := range legacy {
		if rest, ok := strings.CutPrefix(data, old+":"); ok {
			return cur + ":" + rest
		}
	}
	return data
}
