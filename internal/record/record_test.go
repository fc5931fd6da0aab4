package record

import (
	"testing"
	"time"
)

func mustDecode(t *testing.T, body string) Event {
	t.Helper()
	ev, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return ev
}

func TestDecodeLooseTypes(t *testing.T) {
	t.Parallel()
	ev := mustDecode(t, `{"resource":"record","status":"update","company_id":"42","resource_id":1001,
		"data":{"client":{"phone":79990000000,"name":"Ann"},"api_id":555,"confirmed":"1","deleted":null}}`)

	if ev.CompanyID != 42 || ev.RecordID() != 1001 {
		t.Fatalf("ids = %d/%d", ev.CompanyID, ev.RecordID())
	}
	if got := ev.Data.Phone(); got != "79990000000" {
		t.Fatalf("Phone = %q", got)
	}
	if ev.DedupID() != "555" {
		t.Fatalf("DedupID = %q", ev.DedupID())
	}
	if !ev.Data.Confirmed.IsTrue() {
		t.Fatal(`"1" should be confirmed`)
	}
	if ev.Key().String() != "42:1001" {
		t.Fatalf("Key = %s", ev.Key())
	}
}

func TestRecordIDFallsBackToDataID(t *testing.T) {
	t.Parallel()
	ev := mustDecode(t, `{"resource":"record","company_id":1,"data":{"id":77}}`)
	if ev.RecordID() != 77 || ev.DedupID() != "77" {
		t.Fatalf("RecordID=%d DedupID=%s", ev.RecordID(), ev.DedupID())
	}
}

func TestConfirmedTriState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw       string
		wantTrue  bool
		wantFalse bool
	}{
		{raw: "1", wantTrue: true},
		{raw: `"1"`, wantTrue: true},
		{raw: "true", wantTrue: true},
		{raw: "0", wantFalse: true},
		{raw: `"0"`, wantFalse: true},
		{raw: "false", wantFalse: true},
		{raw: "null", wantFalse: true},
		{raw: "", wantFalse: true},
		{raw: "2"},
		{raw: `"yes"`},
	}
	for _, tt := range tests {
		c := Confirmed{RawValue(tt.raw)}
		if c.IsTrue() != tt.wantTrue || c.IsFalse() != tt.wantFalse {
			t.Fatalf("%s: IsTrue=%v IsFalse=%v", tt.raw, c.IsTrue(), c.IsFalse())
		}
	}
}

func TestIsCanceled(t *testing.T) {
	t.Parallel()
	tests := []struct {
		body string
		want bool
	}{
		{`{"status":"deleted"}`, true},
		{`{"status":"Cancelled"}`, true},
		{`{"status":"remove"}`, true},
		{`{"status":"update","data":{"deleted":true}}`, true},
		{`{"status":"update","data":{"deleted":1}}`, false},
		{`{"status":"create","data":{"deleted":true}}`, false},
		{`{"status":"update"}`, false},
	}
	for _, tt := range tests {
		if got := mustDecode(t, tt.body).IsCanceled(); got != tt.want {
			t.Fatalf("%s: IsCanceled=%v want %v", tt.body, got, tt.want)
		}
	}
}

func TestIsNoShow(t *testing.T) {
	t.Parallel()
	tests := []struct {
		body string
		want bool
	}{
		{`{"status":"update","data":{"attendance":-1}}`, true},
		{`{"status":"update","data":{"visit_attendance":"-1"}}`, true},
		{`{"status":"update","data":{"attendance":-1,"deleted":true}}`, false},
		{`{"status":"create","data":{"attendance":-1}}`, false},
		{`{"status":"update","data":{"attendance":2}}`, false},
	}
	for _, tt := range tests {
		if got := mustDecode(t, tt.body).IsNoShow(); got != tt.want {
			t.Fatalf("%s: IsNoShow=%v want %v", tt.body, got, tt.want)
		}
	}
}

func TestIsNewWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	recent := mustDecode(t, `{"resource":"record","status":"update","data":{"create_date":"2024-05-01T09:59:00+00:00"}}`)
	old := mustDecode(t, `{"resource":"record","status":"update","data":{"create_date":"2024-05-01T09:50:00+0000"}}`)
	create := mustDecode(t, `{"resource":"record","status":"create"}`)

	if !recent.IsNew(now, 2*time.Minute) {
		t.Fatal("update one minute after creation should count as new")
	}
	if old.IsNew(now, 2*time.Minute) {
		t.Fatal("ten minute old record should not count as new")
	}
	if !create.IsNew(now, 0) {
		t.Fatal("create status is always new")
	}
}

func TestDateTime(t *testing.T) {
	t.Parallel()
	tests := []struct {
		data       string
		date, time string
	}{
		{`{"date":"2024-05-01 10:00:00"}`, "2024-05-01", "10:00"},
		{`{"datetime":"2024-05-01T10:30:00+07:00"}`, "2024-05-01", "10:30"},
		{`{"datetime":"2024-05-01T11:45:00Z"}`, "2024-05-01", "11:45"},
		{`{"date":"2024-05-01"}`, Dash, Dash},
	}
	for _, tt := range tests {
		ev := mustDecode(t, `{"data":`+tt.data+`}`)
		d, c := ev.Data.DateTime()
		if d != tt.date || c != tt.time {
			t.Fatalf("%s: got %s %s", tt.data, d, c)
		}
	}
}

func TestLinks(t *testing.T) {
	t.Parallel()
	ev := mustDecode(t, `{"company_id":5,"resource_id":9,"data":{"composite":{"staff":[{"id":3,"name":"Bob"}]}}}`)
	if got := ev.RecordLink(); got != "https://yclients.com/record/5/9" {
		t.Fatalf("RecordLink = %s", got)
	}
	if got := ev.ReviewLink("123"); got != "https://n123.yclients.com/company/5/select-master/master-info/5/3" {
		t.Fatalf("ReviewLink = %s", got)
	}
	if got := ev.ReviewLink(""); got != "" {
		t.Fatalf("ReviewLink without widget = %s", got)
	}
	if ev.Data.StaffName() != "Bob" {
		t.Fatalf("StaffName = %s", ev.Data.StaffName())
	}
	short := mustDecode(t, `{"company_id":5,"resource_id":9,"data":{"short_link":"https://s/x","review_link":"https://r"}}`)
	if short.RecordLink() != "https://s/x" || short.ReviewLink("1") != "https://r" {
		t.Fatalf("explicit links ignored: %s %s", short.RecordLink(), short.ReviewLink("1"))
	}
}

func TestMaskPhone(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"+79991234567": "+7999****567",
		"1234567":      "1234567",
		"":             Dash,
	}
	for in, want := range tests {
		if got := MaskPhone(in); got != want {
			t.Fatalf("MaskPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSnapshotHashStable(t *testing.T) {
	t.Parallel()
	a := mustDecode(t, `{"data":{"date":"2024-05-01 10:00:00","services":[{"title":"Wash"}],"confirmed":0}}`)
	b := mustDecode(t, `{"data":{"services":[{"title":"Wash","id":3}],"confirmed":0,"date":"2024-05-01 10:00:59"}}`)
	c := mustDecode(t, `{"data":{"date":"2024-05-01 11:00:00","services":[{"title":"Wash"}],"confirmed":0}}`)

	if a.Data.Snapshot().Hash() != b.Data.Snapshot().Hash() {
		t.Fatal("snapshots differing only in ignored fields should hash equal")
	}
	if a.Data.Snapshot().Hash() == c.Data.Snapshot().Hash() {
		t.Fatal("time change should change hash")
	}
}

func TestTrackerSweep(t *testing.T) {
	t.Parallel()
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	tr := NewTracker(time.Minute, 2, clock)
	tr.Set("a", State{SnapshotHash: "1"})
	tr.Set("b", State{SnapshotHash: "2"})
	now = now.Add(2 * time.Minute)
	tr.Set("c", State{SnapshotHash: "3"})

	if tr.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tr.Len())
	}
	if s, ok := tr.Get("c"); !ok || s.SnapshotHash != "3" {
		t.Fatalf("Get(c) = %+v %v", s, ok)
	}
}

func TestTrackerSweepWaitsForGrowth(t *testing.T) {
	t.Parallel()
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	tr := NewTracker(time.Minute, 2, clock)
	for _, k := range []string{"a", "b", "c"} {
		tr.Set(k, State{})
	}
	// c triggered a sweep that kept all three; the next waits for more than 6.
	now = now.Add(2 * time.Minute)
	for _, k := range []string{"d", "e", "f"} {
		tr.Set(k, State{})
	}
	if tr.Len() != 6 {
		t.Fatalf("Len = %d, want 6 before the next sweep", tr.Len())
	}
	tr.Set("g", State{})
	if tr.Len() != 4 {
		t.Fatalf("Len = %d, want 4 after sweeping a, b, c", tr.Len())
	}
}

func TestTrackerMarkDeletedKeepsHash(t *testing.T) {
	t.Parallel()
	tr := NewTracker(0, 0, nil)
	tr.Set("k", State{SnapshotHash: "h"})
	tr.MarkDeleted("k")
	s, ok := tr.Get("k")
	if !ok || !s.Deleted || s.SnapshotHash != "h" {
		t.Fatalf("Get(k) = %+v %v", s, ok)
	}
}
