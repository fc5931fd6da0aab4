package router

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	kit "aquabot/internal/transport"
	logx "aquabot/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	answers []kit.CallbackAnswer
	answerc chan string
	menu    []kit.BotCommand
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{answerc: make(chan string, 8)} }

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(context.Context, kit.ChatTarget, string, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) ClearMarkup(context.Context, kit.MessageRef) error { return nil }
func (f *fakeAdapter) AnswerCallback(_ context.Context, id string, ans kit.CallbackAnswer) error {
	f.mu.Lock()
	f.answers = append(f.answers, ans)
	f.mu.Unlock()
	f.answerc <- id
	return nil
}
func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func startRouter(t *testing.T, r *Router) chan<- kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return updates
}

func msg(chatID, from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chatID, FromID: from, Text: text}}
}

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting")
	}
	var zero T
	return zero
}

func TestCommandAliasAndArgs(t *testing.T) {
	t.Parallel()
	r := New(Config{Workers: 1}, newFakeAdapter(), logx.Nop())
	got := make(chan *Request, 1)
	r.SetRegistry(Registry{Commands: []Command{{
		Name:    "phone",
		Aliases: []string{"number"},
		Handle: func(_ context.Context, req *Request) error {
			got <- req
			return nil
		},
	}}})
	updates := startRouter(t, r)

	updates <- msg(5, 7, "/Number@aquabot one two")
	req := wait(t, got)
	if req.Command != "/phone" || !reflect.DeepEqual(req.Args, []string{"one", "two"}) {
		t.Fatalf("command=%q args=%v", req.Command, req.Args)
	}
	if req.Chat.ChatID != 5 || req.FromID != 7 || req.ReqID == "" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestAdminCommandRefused(t *testing.T) {
	t.Parallel()
	r := New(Config{Workers: 1, AdminChatID: -100, AdminUserIDs: []int64{42}}, newFakeAdapter(), logx.Nop())
	got := make(chan int64, 4)
	r.SetRegistry(Registry{Commands: []Command{{
		Name:   "pending",
		Access: AccessAdmin,
		Handle: func(_ context.Context, req *Request) error {
			got <- req.Chat.ChatID
			return nil
		},
	}}})
	updates := startRouter(t, r)

	updates <- msg(9, 9, "/pending")
	updates <- msg(-100, 9, "/pending")
	updates <- msg(9, 42, "/pending")
	if a, b := wait(t, got), wait(t, got); !(a == -100 && b == 9 || a == 9 && b == -100) {
		t.Fatalf("unexpected admin chats %d %d", a, b)
	}
	select {
	case c := <-got:
		t.Fatalf("non-admin reached handler in chat %d", c)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCallbackRoutingAndAnswer(t *testing.T) {
	t.Parallel()
	fa := newFakeAdapter()
	r := New(Config{Workers: 1, LegacyCallbacks: map[string]string{"rec_confirm": "rec:confirm"}}, fa, logx.Nop())
	payloads := make(chan string, 2)
	r.SetRegistry(Registry{Callbacks: []CallbackRoute{{
		Scope:  "rec",
		Action: "confirm",
		Handle: func(ctx context.Context, req *Request) error {
			payloads <- req.Payload
			if req.Payload == "1:2" {
				return req.Answer(ctx, kit.CallbackAnswer{Text: "no", Alert: true})
			}
			return nil
		},
	}}})
	updates := startRouter(t, r)

	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "a", Data: "rec_confirm:1:2"}}
	if p := wait(t, payloads); p != "1:2" {
		t.Fatalf("payload = %q", p)
	}
	if id := wait(t, fa.answerc); id != "a" {
		t.Fatalf("answered %q", id)
	}
	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "b", Data: "rec:confirm:3:4"}}
	wait(t, payloads)
	if id := wait(t, fa.answerc); id != "b" {
		t.Fatalf("answered %q", id)
	}
	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "c", Data: "nope"}}
	if id := wait(t, fa.answerc); id != "c" {
		t.Fatalf("answered %q", id)
	}

	fa.mu.Lock()
	defer fa.mu.Unlock()
	if len(fa.answers) != 3 || !fa.answers[0].Alert || fa.answers[1].Text != "" {
		t.Fatalf("answers = %+v", fa.answers)
	}
}

func TestContactAndPanic(t *testing.T) {
	t.Parallel()
	r := New(Config{Workers: 1}, newFakeAdapter(), logx.Nop())
	got := make(chan string, 1)
	r.SetRegistry(Registry{
		Commands: []Command{{Name: "boom", Handle: func(context.Context, *Request) error { panic("boom") }}},
		Contact: func(_ context.Context, req *Request) error {
			got <- req.Contact.Phone
			return nil
		},
	})
	updates := startRouter(t, r)

	updates <- msg(1, 1, "/boom")
	updates <- kit.Update{Kind: kit.UpdateContact, Message: &kit.Message{ChatID: 1, FromID: 1, Contact: &kit.Contact{Phone: "+7916"}}}
	if p := wait(t, got); p != "+7916" {
		t.Fatalf("phone = %q", p)
	}
}

func TestChainOrderAndTimeout(t *testing.T) {
	t.Parallel()
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) error {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	h := Chain(func(ctx context.Context, _ *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}, mark("a"), mark("b"), MWTimeout(10*time.Millisecond))
	err := h(context.Background(), &Request{Logger: logx.Nop()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if !reflect.DeepEqual(order, []string{"a", "b"}) {
		t.Fatalf("order = %v", order)
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		name string
		args []string
		ok   bool
	}{
		{"/start", "start", []string{}, true},
		{"  /Record@bot x ", "record", []string{"x"}, true},
		{"hello", "", nil, false},
		{"/", "", nil, false},
		{"", "", nil, false},
	}
	for _, tc := range cases {
		name, args, ok := parseCommand(tc.in)
		if ok != tc.ok || name != tc.name || (ok && len(args) != len(tc.args)) {
			t.Fatalf("parseCommand(%q) = %q %v %v", tc.in, name, args, ok)
		}
	}
}

func TestMenuAndCommands(t *testing.T) {
	t.Parallel()
	fa := newFakeAdapter()
	r := New(Config{}, fa, logx.Nop())
	noop := func(context.Context, *Request) error { return nil }
	r.SetRegistry(Registry{Commands: []Command{
		{Name: "start", Description: "Начать", Handle: noop},
		{Name: "record", Description: "Моя запись", Handle: noop},
		{Name: "pending", Access: AccessAdmin, Handle: noop},
		{Name: "number", Hidden: true, Handle: noop},
	}})
	if err := r.PublishMenu(context.Background()); err != nil {
		t.Fatalf("PublishMenu: %v", err)
	}
	want := []kit.BotCommand{{Command: "record", Description: "Моя запись"}, {Command: "start", Description: "Начать"}}
	if !reflect.DeepEqual(fa.menu, want) {
		t.Fatalf("menu = %+v", fa.menu)
	}
	if n := len(r.Commands(false)); n != 3 {
		t.Fatalf("public commands = %d", n)
	}
	if n := len(r.Commands(true)); n != 4 {
		t.Fatalf("admin commands = %d", n)
	}
}
