package yclients

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	logx "aquabot/pkg/logx"
)

type hit struct {
	method, path, contentType, body, auth, accept string
}

type fakeAPI struct {
	mu   sync.Mutex
	hits []hit
	// respond picks a status and body per request.
	respond func(h hit) (int, string)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	h := hit{
		method:      r.Method,
		path:        r.URL.RequestURI(),
		contentType: r.Header.Get("Content-Type"),
		body:        string(b),
		auth:        r.Header.Get("Authorization"),
		accept:      r.Header.Get("Accept"),
	}
	f.mu.Lock()
	f.hits = append(f.hits, h)
	f.mu.Unlock()
	status, body := f.respond(h)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *fakeAPI) all() []hit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hit(nil), f.hits...)
}

func newTestClient(t *testing.T, api *fakeAPI, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, PartnerToken: "p", UserToken: "u", Timeout: timeout}, logx.Nop())
}

const recordJSON = `{"success":true,"data":{"id":42,"staff_id":3,"services":[{"id":11,"title":"Swim"},{"id":12}],
"client":{"id":7,"phone":"+79990001122"},"seance_length":3600,"datetime":"2026-10-20T10:00:00+03:00","attendance":0}}`

func TestGetRecordSendsHeaders(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{respond: func(hit) (int, string) { return 200, recordJSON }}
	c := newTestClient(t, api, 0)

	rec, err := c.GetRecord(context.Background(), 1, 42)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.ID != 42 || rec.StaffID != 3 || rec.Attended(AttendanceConfirmed) {
		t.Fatalf("unexpected record %+v", rec)
	}
	h := api.all()[0]
	if h.path != "/record/1/42" || h.method != http.MethodGet {
		t.Fatalf("request = %s %s", h.method, h.path)
	}
	if h.auth != "Bearer p, User u" || h.accept != "application/vnd.yclients.v2+json" {
		t.Fatalf("headers auth=%q accept=%q", h.auth, h.accept)
	}
}

func TestAPIErrorCarriesMeta(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{respond: func(hit) (int, string) {
		return 422, `{"success":false,"meta":{"message":"bad","errors":{"id":["id required"]}}}`
	}}
	c := newTestClient(t, api, 0)

	_, err := c.GetRecord(context.Background(), 1, 42)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != 422 || apiErr.Message != "bad" || !strings.Contains(string(apiErr.Errors), "id required") {
		t.Fatalf("APIError = %+v", apiErr)
	}
}

func TestSuccessFalseIsAnError(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{respond: func(hit) (int, string) { return 200, `{"success":false,"meta":{"message":"nope"}}` }}
	c := newTestClient(t, api, 0)
	_, err := c.GetRecord(context.Background(), 1, 42)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "nope" {
		t.Fatalf("err = %v", err)
	}
}

func TestTimeoutMapsToErrTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	c := New(Config{BaseURL: srv.URL, Timeout: 30 * time.Millisecond}, logx.Nop())

	_, err := c.GetRecord(context.Background(), 1, 42)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestUpdateRecordFallsBackToFormOnce(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{respond: func(h hit) (int, string) {
		if strings.HasPrefix(h.contentType, "application/json") {
			return 422, `{"success":false,"meta":{"message":"id missing"}}`
		}
		return 200, `{"success":true,"data":{}}`
	}}
	c := newTestClient(t, api, 0)
	two := AttendanceConfirmed
	p := UpdatePayload{ID: 42, StaffID: 3, Services: []int64{11, 12}, Client: ClientRef{ID: 7}, Attendance: &two}

	var fallbacks int
	if err := c.UpdateRecord(context.Background(), 1, 42, p, func(error) { fallbacks++ }); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	hits := api.all()
	if len(hits) != 2 || fallbacks != 1 {
		t.Fatalf("hits = %d fallbacks = %d, want 2 and 1", len(hits), fallbacks)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(hits[0].body), &body); err != nil || body["attendance"] != float64(2) {
		t.Fatalf("json body = %s", hits[0].body)
	}
	for _, want := range []string{"attendance=2", "client%5Bid%5D=7", "services%5B%5D=11", "staff_id=3"} {
		if !strings.Contains(hits[1].body, want) {
			t.Fatalf("form body %q lacks %q", hits[1].body, want)
		}
	}
}

func TestUpdateRecordKeepsBothLegs(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{respond: func(h hit) (int, string) {
		if strings.HasPrefix(h.contentType, "application/json") {
			return 422, `{"success":false,"meta":{"message":"json rejected"}}`
		}
		return 422, `{"success":false,"meta":{"message":"form rejected"}}`
	}}
	c := newTestClient(t, api, 0)

	err := c.UpdateRecord(context.Background(), 1, 42, UpdatePayload{ID: 42}, nil)
	var ue *UpdateError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UpdateError", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "form rejected" {
		t.Fatalf("first APIError = %+v, want the form leg", apiErr)
	}
	if !strings.Contains(err.Error(), "json rejected") || !strings.Contains(err.Error(), "form rejected") {
		t.Fatalf("error = %q", err.Error())
	}
}

func TestPayloadFrom(t *testing.T) {
	t.Parallel()
	var env struct {
		Data Record `json:"data"`
	}
	if err := json.Unmarshal([]byte(recordJSON), &env); err != nil {
		t.Fatal(err)
	}
	p := PayloadFrom(&env.Data, 42)
	if p.ID != 42 || p.StaffID != 3 || p.Client.ID != 7 || p.SeanceLength != 3600 || len(p.Services) != 2 {
		t.Fatalf("payload = %+v", p)
	}
	if p.Attendance != nil {
		t.Fatalf("attendance must be left to the caller")
	}
}

func TestListRecordsAndFindClient(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{respond: func(h hit) (int, string) {
		if strings.HasPrefix(h.path, "/records/") {
			return 200, `{"success":true,"data":[{"id":1},{"id":2}]}`
		}
		if strings.Contains(h.body, `"value":"79990001122"`) {
			return 200, `{"success":true,"data":[{"id":7,"name":"Anna"}]}`
		}
		return 200, `{"success":true,"data":[]}`
	}}
	c := newTestClient(t, api, 0)
	ctx := context.Background()

	recs, err := c.ListRecords(ctx, ListQuery{CompanyID: 1, ClientID: 7, StartDate: "2026-10-15"})
	if err != nil || len(recs) != 2 {
		t.Fatalf("ListRecords = %v, %v", recs, err)
	}
	if p := api.all()[0].path; !strings.Contains(p, "client_id=7") || !strings.Contains(p, "start_date=2026-10-15") {
		t.Fatalf("list path = %q", p)
	}

	cl, err := c.FindClientByPhone(ctx, 1, "+7 999 000-11-22")
	if err != nil || cl == nil || cl.ID != 7 {
		t.Fatalf("FindClientByPhone = %+v, %v", cl, err)
	}
	cl, err = c.FindClientByPhone(ctx, 1, "+70000000000")
	if err != nil || cl != nil {
		t.Fatalf("unknown phone = %+v, %v", cl, err)
	}
}
