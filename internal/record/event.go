// Package record models booking-platform webhook events and the derived
// per-record state used to detect real changes.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const ResourceRecord = "record"

const (
	StatusCreate = "create"
	StatusUpdate = "update"
)

// Event is one webhook delivery. Treat it as immutable once decoded.
type Event struct {
	Resource   string `json:"resource"`
	Status     string `json:"status"`
	CompanyID  ID     `json:"company_id"`
	ResourceID ID     `json:"resource_id"`
	Data       *Data  `json:"data"`

	DeliveryID string    `json:"-"`
	ReceivedAt time.Time `json:"-"`
}

type Data struct {
	ID              ID         `json:"id"`
	Client          *Client    `json:"client"`
	Staff           *Staff     `json:"staff"`
	Composite       *Composite `json:"composite"`
	Services        []Service  `json:"services"`
	Date            Text       `json:"date"`
	Datetime        Text       `json:"datetime"`
	Confirmed       Confirmed  `json:"confirmed"`
	Attendance      Value      `json:"attendance"`
	VisitAttendance Value      `json:"visit_attendance"`
	Deleted         Value      `json:"deleted"`
	ShortLink       Text       `json:"short_link"`
	Link            Text       `json:"link"`
	ReviewLink      Text       `json:"review_link"`
	CreateDate      Text       `json:"create_date"`
	APIID           Text       `json:"api_id"`
	Comment         Text       `json:"comment"`
	CreatedUserID   Value      `json:"created_user_id"`
}

type Client struct {
	ID          ID   `json:"id"`
	Phone       Text `json:"phone"`
	DisplayName Text `json:"display_name"`
	Name        Text `json:"name"`
}

type Staff struct {
	ID   ID   `json:"id"`
	Name Text `json:"name"`
}

type Composite struct {
	Staff []Staff `json:"staff"`
}

type Service struct {
	ID    ID   `json:"id"`
	Title Text `json:"title"`
}

// Decode parses a webhook body.
func Decode(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decode webhook event: %w", err)
	}
	ev.Resource = strings.TrimSpace(ev.Resource)
	ev.Status = strings.TrimSpace(ev.Status)
	return ev, nil
}

// Key identifies a booking across repeated deliveries.
type Key struct {
	CompanyID int64
	RecordID  int64
}

func (k Key) String() string {
	return strconv.FormatInt(k.CompanyID, 10) + ":" + strconv.FormatInt(k.RecordID, 10)
}

// RecordID is resource_id, falling back to data.id.
func (e Event) RecordID() int64 {
	if e.ResourceID != 0 {
		return e.ResourceID.Int64()
	}
	if e.Data != nil {
		return e.Data.ID.Int64()
	}
	return 0
}

func (e Event) Key() Key { return Key{CompanyID: e.CompanyID.Int64(), RecordID: e.RecordID()} }

// DedupID prefers api_id, the steadier discriminator, over the record id.
func (e Event) DedupID() string {
	if e.Data != nil {
		if id := e.Data.APIID.String(); id != "" {
			return id
		}
	}
	return strconv.FormatInt(e.RecordID(), 10)
}

func (e Event) IsRecord() bool { return e.Resource == ResourceRecord }

// IsCreateOrUpdate reports the statuses the admin rules watch.
func (e Event) IsCreateOrUpdate() bool {
	return e.Status == StatusCreate || e.Status == StatusUpdate
}

var cancelStatuses = map[string]bool{
	"delete": true, "deleted": true,
	"cancel": true, "canceled": true, "cancelled": true,
	"remove": true, "removed": true,
}

// IsCanceled: a removal-like status, or an update that carries deleted=true.
func (e Event) IsCanceled() bool {
	st := strings.ToLower(e.Status)
	if cancelStatuses[st] {
		return true
	}
	return st == StatusUpdate && e.Data != nil && e.Data.Deleted.IsTrue()
}

// IsNoShow: an update of a live record marked with attendance -1.
func (e Event) IsNoShow() bool {
	if e.Status != StatusUpdate || e.Data == nil || e.Data.Deleted.IsTrue() {
		return false
	}
	if n, ok := e.Data.VisitAttendance.Number(); ok && n == -1 {
		return true
	}
	n, ok := e.Data.Attendance.Number()
	return ok && n == -1
}

// IsNew covers status=create and updates whose create_date is within window of now.
func (e Event) IsNew(now time.Time, window time.Duration) bool {
	if !e.IsRecord() {
		return false
	}
	if e.Status == StatusCreate {
		return true
	}
	if e.Status != StatusUpdate || e.Data == nil {
		return false
	}
	created, ok := ParseTimestamp(e.Data.CreateDate.String())
	if !ok {
		return false
	}
	diff := now.Sub(created)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts the layouts the platform is known to emit.
// Zone-less values are read as local time.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
