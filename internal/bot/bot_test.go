package bot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"aquabot/internal/confirm"
	"aquabot/internal/links"
	"aquabot/internal/storage"
	kit "aquabot/internal/transport"
	"aquabot/internal/transport/telegram/router"
	"aquabot/internal/yclients"
	logx "aquabot/pkg/logx"
)

type sent struct {
	text string
	opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sent
	cleared int
	answers []kit.CallbackAnswer
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{text: text, opt: opt})
	return kit.MessageRef{MessageID: len(f.sent)}, nil
}
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) ClearMarkup(context.Context, kit.MessageRef) error {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
	return nil
}
func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, ans kit.CallbackAnswer) error {
	f.mu.Lock()
	f.answers = append(f.answers, ans)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.text
	}
	return out
}

type fakeLinks struct {
	link     storage.Link
	found    bool
	res      links.ContactResult
	err      error
	reported []error
}

func (f *fakeLinks) LinkOf(context.Context, int64) (storage.Link, bool, error) {
	return f.link, f.found, nil
}
func (f *fakeLinks) Contact(context.Context, links.Contact) (links.ContactResult, error) {
	return f.res, f.err
}
func (f *fakeLinks) ReportContactError(_ context.Context, _ int64, err error) {
	f.reported = append(f.reported, err)
}

type fakeRecords struct {
	list  []yclients.Record
	err   error
	query yclients.ListQuery
}

func (f *fakeRecords) ListRecords(_ context.Context, q yclients.ListQuery) ([]yclients.Record, error) {
	f.query = q
	return f.list, f.err
}

type fakeConfirm struct {
	stages []confirm.Stage
	res    confirm.Result
	err    error
}

func (f *fakeConfirm) Confirm(_ context.Context, req confirm.Request) (confirm.Result, error) {
	for _, s := range f.stages {
		req.OnStage(s)
	}
	return f.res, f.err
}

type fakeStore struct {
	audit []storage.AuditEntry
}

func (f *fakeStore) PendingLinks(context.Context, int64, int) ([]storage.Link, error) {
	return []storage.Link{{Phone: "+79161234567", TelegramUserID: 5}}, nil
}
func (f *fakeStore) CountPending(context.Context, int64) (int, error) { return 1, nil }
func (f *fakeStore) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	f.audit = append(f.audit, e)
	return nil
}

type fakeNotify struct{ got []kit.Notification }

func (f *fakeNotify) Notify(_ context.Context, n kit.Notification) error {
	f.got = append(f.got, n)
	return nil
}

var fixedNow = time.Date(2026, 10, 15, 23, 30, 0, 0, time.UTC)

func newHandlers(d Deps) *Handlers {
	d.CompanyID = 42
	d.AdminChat = kit.ChatTarget{ChatID: -100}
	d.Location = time.FixedZone("KRAT", 7*3600)
	d.Now = func() time.Time { return fixedNow }
	d.Log = logx.Nop()
	return New(d)
}

func newRequest(a *fakeAdapter) *router.Request {
	return &router.Request{
		Chat:    kit.ChatTarget{ChatID: 7},
		FromID:  7,
		Adapter: a,
		Logger:  logx.Nop(),
	}
}

func decodeRecords(t *testing.T, s string) []yclients.Record {
	t.Helper()
	var out []yclients.Record
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	return out
}

func TestRecordNeedsPhone(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{}
	h := newHandlers(Deps{Links: &fakeLinks{}, Records: &fakeRecords{}})
	if err := h.record(context.Background(), newRequest(a)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(a.sent) != 1 || a.sent[0].text != textNeedPhoneForRecord || a.sent[0].opt.RequestContact == "" {
		t.Fatalf("sent = %+v", a.sent)
	}
}

func TestRecordProfileNotLinked(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{}
	h := newHandlers(Deps{Links: &fakeLinks{found: true, link: storage.Link{Phone: "+79161234567"}}, Records: &fakeRecords{}})
	_ = h.record(context.Background(), newRequest(a))
	if got := a.texts(); len(got) != 1 || got[0] != textProfileNotLinked {
		t.Fatalf("sent = %v", got)
	}
}

func TestRecordShowsNextActiveWithButton(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{}
	recs := &fakeRecords{list: decodeRecords(t, `[
		{"id": 1001, "company_id": 42, "deleted": true},
		{"id": 1002, "company_id": 42, "attendance": 0, "datetime": "2026-10-16T10:00:00+07:00",
		 "services": [{"title": "Комплексная мойка"}], "staff": {"id": 3, "name": "Иван"}}
	]`)}
	h := newHandlers(Deps{Links: &fakeLinks{found: true, link: storage.Link{Phone: "+79161234567", ClientID: 77}}, Records: recs})
	if err := h.record(context.Background(), newRequest(a)); err != nil {
		t.Fatalf("record: %v", err)
	}

	if recs.query.ClientID != 77 || recs.query.StartDate != "2026-10-16" || recs.query.Count != 10 {
		t.Fatalf("query = %+v", recs.query)
	}
	if len(a.sent) != 2 || a.sent[0].text != textSearchingRecord {
		t.Fatalf("sent = %v", a.texts())
	}
	card := a.sent[1]
	for _, want := range []string{"2026-10-16", "10:00", "Комплексная мойка", "Иван", "https://yclients.com/record/42/1002", textNeedConfirmHint} {
		if !strings.Contains(card.text, want) {
			t.Fatalf("card missing %q:\n%s", want, card.text)
		}
	}
	if len(card.opt.Inline) != 1 || card.opt.Inline[0][0].Data != "rec:confirm:42:1002" {
		t.Fatalf("inline = %+v", card.opt.Inline)
	}
}

func TestRecordConfirmedHasNoButton(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{}
	recs := &fakeRecords{list: decodeRecords(t, `[{"id": 5, "attendance": 2, "short_link": "https://yclients.com/r/x"}]`)}
	h := newHandlers(Deps{Links: &fakeLinks{found: true, link: storage.Link{Phone: "+7", ClientID: 1}}, Records: recs})
	_ = h.record(context.Background(), newRequest(a))
	card := a.sent[len(a.sent)-1]
	if card.opt.Inline != nil || strings.Contains(card.text, textNeedConfirmHint) {
		t.Fatalf("unexpected confirm prompt: %+v", card)
	}
	if !strings.Contains(card.text, "https://yclients.com/r/x") {
		t.Fatalf("short link missing: %s", card.text)
	}
}

func TestRecordListFailure(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{}
	recs := &fakeRecords{err: errors.New("boom")}
	h := newHandlers(Deps{Links: &fakeLinks{found: true, link: storage.Link{Phone: "+7", ClientID: 1}}, Records: recs})
	_ = h.record(context.Background(), newRequest(a))
	if got := a.texts(); got[len(got)-1] != textListRecordsFail {
		t.Fatalf("sent = %v", got)
	}
}

func TestContactFlow(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		links    *fakeLinks
		want     string
		reported int
	}{
		{"bad phone", &fakeLinks{err: links.ErrBadPhone}, textCantParsePhone, 0},
		{"linked", &fakeLinks{res: links.ContactResult{Phone: "+79161234567", Linked: true}}, textPhoneLinked("+79161234567"), 0},
		{"pending", &fakeLinks{res: links.ContactResult{Phone: "+79161234567"}}, textPhonePending("+79161234567"), 0},
		{"error", &fakeLinks{err: errors.New("db down")}, textContactFlowError, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := &fakeAdapter{}
			h := newHandlers(Deps{Links: tc.links})
			req := newRequest(a)
			req.Contact = &kit.Contact{Phone: "89161234567"}
			if err := h.contact(context.Background(), req); err != nil {
				t.Fatalf("contact: %v", err)
			}
			if got := a.texts(); len(got) != 1 || got[0] != tc.want {
				t.Fatalf("sent = %v", got)
			}
			if len(tc.links.reported) != tc.reported {
				t.Fatalf("reported = %d", len(tc.links.reported))
			}
		})
	}
}

func callbackRequest(a *fakeAdapter, payload string) *router.Request {
	req := newRequest(a)
	req.Callback = &kit.Callback{ID: "cb1", ChatID: 7, MessageID: 99, Data: "rec:confirm:" + payload}
	req.Payload = payload
	return req
}

func TestConfirmButtonOutcomes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		conf    *fakeConfirm
		want    []string
		cleared int
		alerts  int
		admin   int
		ok      bool
	}{
		{
			name:    "confirmed",
			conf:    &fakeConfirm{stages: []confirm.Stage{confirm.StageRead, confirm.StageWriteJSON, confirm.StageVerify, confirm.StageDone}},
			want:    []string{textChecking, textConfirming, textConfirmOK},
			cleared: 1,
			ok:      true,
		},
		{
			name:    "already",
			conf:    &fakeConfirm{stages: []confirm.Stage{confirm.StageRead, confirm.StageAlreadyConfirmed}, res: confirm.Result{AlreadyConfirmed: true}},
			want:    []string{textChecking, textAlreadyConfirmed},
			cleared: 1,
			ok:      true,
		},
		{
			name: "read failed",
			conf: &fakeConfirm{stages: []confirm.Stage{confirm.StageRead}, err: &confirm.Failure{Stage: confirm.StageRead, Err: errors.New("500")}},
			want: []string{textChecking, textGetRecordFail},
		},
		{
			name: "timeout",
			conf: &fakeConfirm{stages: []confirm.Stage{confirm.StageRead}, err: &confirm.Failure{Stage: confirm.StageRead, Err: yclients.ErrTimeout}},
			want: []string{textChecking, textTimeout},
		},
		{
			name: "busy",
			conf: &fakeConfirm{err: &confirm.Failure{Stage: confirm.StageLock, Err: confirm.ErrBusy}},
			want: []string{textBusy},
		},
		{
			name: "write rejected",
			conf: &fakeConfirm{
				stages: []confirm.Stage{confirm.StageRead, confirm.StageWriteJSON, confirm.StageWriteForm},
				err:    &confirm.Failure{Stage: confirm.StageWriteForm, Message: "Запись не найдена"},
			},
			want:    []string{textChecking, textConfirming, textUpdateFailMsg},
			cleared: 1,
			alerts:  1,
			admin:   1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := &fakeAdapter{}
			store := &fakeStore{}
			notify := &fakeNotify{}
			h := newHandlers(Deps{Confirm: tc.conf, Store: store, Notify: notify})
			if err := h.confirmRecord(context.Background(), callbackRequest(a, "42:1002")); err != nil {
				t.Fatalf("confirmRecord: %v", err)
			}
			got := a.texts()
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Fatalf("sent = %q, want %q", got, tc.want)
			}
			if a.cleared != tc.cleared {
				t.Fatalf("cleared = %d, want %d", a.cleared, tc.cleared)
			}
			alerts := 0
			for _, ans := range a.answers {
				if ans.Alert {
					alerts++
				}
			}
			if alerts != tc.alerts {
				t.Fatalf("alerts = %d, want %d", alerts, tc.alerts)
			}
			if len(notify.got) != tc.admin {
				t.Fatalf("admin notices = %d, want %d", len(notify.got), tc.admin)
			}
			if len(store.audit) != 1 || store.audit[0].OK != tc.ok || store.audit[0].Target != "42:1002" {
				t.Fatalf("audit = %+v", store.audit)
			}
		})
	}
}

func TestConfirmBadPayload(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{}
	conf := &fakeConfirm{}
	h := newHandlers(Deps{Confirm: conf})
	if err := h.confirmRecord(context.Background(), callbackRequest(a, "x:1")); err != nil {
		t.Fatalf("confirmRecord: %v", err)
	}
	if len(a.answers) != 1 || a.answers[0].Text != textBadButton || len(a.sent) != 0 {
		t.Fatalf("answers=%+v sent=%v", a.answers, a.texts())
	}
}

func TestParseRecordRef(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		c, r int64
		ok   bool
	}{
		{"42:1002", 42, 1002, true},
		{"42", 0, 0, false},
		{"0:5", 0, 0, false},
		{"a:b", 0, 0, false},
		{"1:2:3", 0, 0, false},
	}
	for _, tc := range cases {
		c, r, ok := parseRecordRef(tc.in)
		if ok != tc.ok || c != tc.c || r != tc.r {
			t.Fatalf("parseRecordRef(%q) = %d %d %v", tc.in, c, r, ok)
		}
	}
}

type fakeCommands struct{ admin bool }

func (f fakeCommands) Commands(admin bool) []router.Command {
	out := []router.Command{{Name: "record", Description: "Моя ближайшая запись"}}
	if admin {
		out = append(out, router.Command{Name: "pending", Description: "Ожидающие привязки"})
	}
	return out
}
func (f fakeCommands) IsAdmin(int64, int64) bool { return f.admin }

func TestHelpAndPending(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{}
	h := newHandlers(Deps{Store: &fakeStore{}})
	_ = h.help(fakeCommands{admin: true})(context.Background(), newRequest(a))
	_ = h.pending(context.Background(), newRequest(a))
	got := a.texts()
	if !strings.Contains(got[0], "/record") || !strings.Contains(got[0], "/pending") {
		t.Fatalf("help = %q", got[0])
	}
	if !strings.Contains(got[1], "+79161234567") {
		t.Fatalf("pending = %q", got[1])
	}
	reg := h.Registry(fakeCommands{})
	if len(reg.Commands) != 5 || reg.Contact == nil || len(reg.Callbacks) != 1 {
		t.Fatalf("registry = %d commands", len(reg.Commands))
	}
}
