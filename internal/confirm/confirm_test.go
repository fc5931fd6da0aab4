package confirm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"aquabot/internal/yclients"
	logx "aquabot/pkg/logx"
)

// platform fakes the record endpoints of the booking API.
type platform struct {
	mu         sync.Mutex
	attendance string
	jsonOK     bool
	formOK     bool
	gets       int
	jsonPuts   int
	formPuts   int
	stall      time.Duration
}

func (p *platform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stall > 0 {
		p.mu.Unlock()
		select {
		case <-time.After(p.stall):
		case <-r.Context().Done():
		}
		p.mu.Lock()
	}
	switch {
	case r.Method == http.MethodGet:
		p.gets++
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":42,"staff_id":3,"services":[{"id":11}],"client":{"id":7},"datetime":"2026-10-20T10:00:00+03:00","attendance":` + p.attendance + `}}`))
	case strings.HasPrefix(r.Header.Get("Content-Type"), "application/json"):
		p.jsonPuts++
		if p.jsonOK {
			p.attendance = "2"
			_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"meta":{"message":"json rejected"}}`))
	default:
		p.formPuts++
		if p.formOK {
			p.attendance = "2"
			_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"meta":{"message":"form rejected","errors":{"attendance":["bad"]}}}`))
	}
}

func (p *platform) counts() (gets, jsonPuts, formPuts int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gets, p.jsonPuts, p.formPuts
}

func newCoordinator(t *testing.T, p *platform, timeout time.Duration) *Coordinator {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	api := yclients.New(yclients.Config{BaseURL: srv.URL, Timeout: timeout}, logx.Nop())
	return New(Config{}, api, nil, logx.Nop())
}

func collect(stages *[]Stage) func(Stage) {
	return func(s Stage) { *stages = append(*stages, s) }
}

func TestConfirmAlreadyConfirmedWritesNothing(t *testing.T) {
	t.Parallel()
	p := &platform{attendance: "2"}
	c := newCoordinator(t, p, 0)

	var stages []Stage
	res, err := c.Confirm(context.Background(), Request{CompanyID: 1, RecordID: 42, OnStage: collect(&stages)})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !res.AlreadyConfirmed {
		t.Fatalf("AlreadyConfirmed = false")
	}
	if _, j, f := p.counts(); j+f != 0 {
		t.Fatalf("writes = %d, want 0", j+f)
	}
	if want := []Stage{StageRead, StageAlreadyConfirmed}; !reflect.DeepEqual(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
}

func TestConfirmJSONSuccess(t *testing.T) {
	t.Parallel()
	p := &platform{attendance: "0", jsonOK: true}
	c := newCoordinator(t, p, 0)

	var stages []Stage
	res, err := c.Confirm(context.Background(), Request{CompanyID: 1, RecordID: 42, OnStage: collect(&stages)})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Payload.Attendance == nil || *res.Payload.Attendance != 2 || res.Payload.VisitAttendance != nil {
		t.Fatalf("payload = %+v", res.Payload)
	}
	if res.Verified == nil || !res.Verified.Attended(2) {
		t.Fatalf("verify read missing")
	}
	gets, j, f := p.counts()
	if gets != 2 || j != 1 || f != 0 {
		t.Fatalf("gets=%d json=%d form=%d", gets, j, f)
	}
	if want := []Stage{StageRead, StageWriteJSON, StageVerify, StageDone}; !reflect.DeepEqual(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
}

func TestConfirmFallsBackToFormOnce(t *testing.T) {
	t.Parallel()
	p := &platform{attendance: "0", formOK: true}
	c := newCoordinator(t, p, 0)

	var stages []Stage
	if _, err := c.Confirm(context.Background(), Request{CompanyID: 1, RecordID: 42, OnStage: collect(&stages)}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, j, f := p.counts(); j != 1 || f != 1 {
		t.Fatalf("json=%d form=%d, want 1 and 1", j, f)
	}
	if want := []Stage{StageRead, StageWriteJSON, StageWriteForm, StageVerify, StageDone}; !reflect.DeepEqual(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
}

func TestConfirmBothTransportsFail(t *testing.T) {
	t.Parallel()
	p := &platform{attendance: "0"}
	c := newCoordinator(t, p, 0)

	_, err := c.Confirm(context.Background(), Request{CompanyID: 1, RecordID: 42})
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("err = %v, want *Failure", err)
	}
	if f.Stage != StageWriteForm || f.Message != "form rejected" || !strings.Contains(string(f.Errors), "attendance") || f.Timeout() {
		t.Fatalf("failure = %+v", f)
	}
	if _, j, fp := p.counts(); j != 1 || fp != 1 {
		t.Fatalf("json=%d form=%d, want 1 and 1", j, fp)
	}
	for _, want := range []string{"form rejected", "json rejected"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q lacks %q", err.Error(), want)
		}
	}
	var ue *yclients.UpdateError
	if !errors.As(err, &ue) || !strings.Contains(fmt.Sprint(ue.JSON), "json rejected") {
		t.Fatalf("json leg not reachable: %v", err)
	}
}

func TestConfirmTimeout(t *testing.T) {
	t.Parallel()
	p := &platform{attendance: "0", stall: time.Second}
	c := newCoordinator(t, p, 30*time.Millisecond)

	_, err := c.Confirm(context.Background(), Request{CompanyID: 1, RecordID: 42})
	var f *Failure
	if !errors.As(err, &f) || !f.Timeout() || f.Stage != StageRead {
		t.Fatalf("err = %v, want read timeout", err)
	}
	if !errors.Is(err, yclients.ErrTimeout) {
		t.Fatalf("err does not wrap ErrTimeout: %v", err)
	}
}

func TestConfirmRejectsBadReference(t *testing.T) {
	t.Parallel()
	c := New(Config{}, nil, nil, logx.Nop())
	_, err := c.Confirm(context.Background(), Request{CompanyID: 1})
	var f *Failure
	if !errors.As(err, &f) || f.Stage != StageRead {
		t.Fatalf("err = %v", err)
	}
}

func TestLocalLocker(t *testing.T) {
	t.Parallel()
	l := NewLocalLocker()
	ctx := context.Background()
	unlock, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Lock err = %v, want ErrBusy", err)
	}
	if u, err := l.Lock(ctx, "other"); err != nil {
		t.Fatalf("other key: %v", err)
	} else {
		u()
	}
	unlock()
	unlock()
	if _, err := l.Lock(ctx, "k"); err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
}
