package yclients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"aquabot/internal/record"
	logx "aquabot/pkg/logx"
)

// Attendance value the platform uses for a client-confirmed visit.
const AttendanceConfirmed = 2

type Record struct {
	ID              record.ID        `json:"id"`
	CompanyID       record.ID        `json:"company_id"`
	StaffID         record.ID        `json:"staff_id"`
	Staff           *record.Staff    `json:"staff"`
	Services        []record.Service `json:"services"`
	Client          *record.Client   `json:"client"`
	SeanceLength    record.Value     `json:"seance_length"`
	Length          record.Value     `json:"length"`
	Date            record.Text      `json:"date"`
	Datetime        record.Text      `json:"datetime"`
	Attendance      record.Value     `json:"attendance"`
	VisitAttendance record.Value     `json:"visit_attendance"`
	Confirmed       record.Confirmed `json:"confirmed"`
	Deleted         record.Value     `json:"deleted"`
	ShortLink       record.Text      `json:"short_link"`
	Link            record.Text      `json:"link"`
}

// Attended reports whether attendance equals v.
func (r *Record) Attended(v int) bool {
	n, ok := r.Attendance.Number()
	return ok && int(n) == v
}

// Data converts r into the webhook data shape used for message rendering.
func (r *Record) Data() *record.Data {
	return &record.Data{
		ID:        r.ID,
		Client:    r.Client,
		Staff:     r.Staff,
		Services:  r.Services,
		Date:      r.Date,
		Datetime:  r.Datetime,
		Confirmed: r.Confirmed,
		Deleted:   r.Deleted,
		ShortLink: r.ShortLink,
		Link:      r.Link,
	}
}

type ClientRef struct {
	ID int64 `json:"id"`
}

// UpdatePayload is the full record body the platform expects on PUT.
type UpdatePayload struct {
	ID              int64     `json:"id"`
	StaffID         int64     `json:"staff_id,omitempty"`
	Services        []int64   `json:"services"`
	Client          ClientRef `json:"client"`
	SeanceLength    int64     `json:"seance_length,omitempty"`
	Datetime        string    `json:"datetime,omitempty"`
	Attendance      *int      `json:"attendance,omitempty"`
	VisitAttendance *int      `json:"visit_attendance,omitempty"`
}

// PayloadFrom copies the fields a PUT must repeat from rec.
func PayloadFrom(rec *Record, recordID int64) UpdatePayload {
	p := UpdatePayload{
		ID:       rec.ID.Int64(),
		StaffID:  rec.StaffID.Int64(),
		Services: []int64{},
		Datetime: rec.Datetime.String(),
	}
	if p.ID == 0 {
		p.ID = recordID
	}
	if p.StaffID == 0 && rec.Staff != nil {
		p.StaffID = rec.Staff.ID.Int64()
	}
	for _, s := range rec.Services {
		if id := s.ID.Int64(); id != 0 {
			p.Services = append(p.Services, id)
		}
	}
	if rec.Client != nil {
		p.Client.ID = rec.Client.ID.Int64()
	}
	for _, v := range []record.Value{rec.SeanceLength, rec.Length} {
		if n, ok := v.Number(); ok && n > 0 {
			p.SeanceLength = int64(n)
			break
		}
	}
	return p
}

// Form renders p as the urlencoded body older installs accept.
func (p UpdatePayload) Form() url.Values {
	f := url.Values{}
	f.Set("id", strconv.FormatInt(p.ID, 10))
	if p.StaffID != 0 {
		f.Set("staff_id", strconv.FormatInt(p.StaffID, 10))
	}
	if p.SeanceLength != 0 {
		f.Set("seance_length", strconv.FormatInt(p.SeanceLength, 10))
	}
	if p.Datetime != "" {
		f.Set("datetime", p.Datetime)
	}
	if p.Client.ID != 0 {
		f.Set("client[id]", strconv.FormatInt(p.Client.ID, 10))
		f.Set("client", fmt.Sprintf(`{"id":%d}`, p.Client.ID))
	}
	if len(p.Services) > 0 {
		for _, s := range p.Services {
			f.Add("services[]", strconv.FormatInt(s, 10))
		}
		b, _ := json.Marshal(p.Services)
		f.Set("services", string(b))
	}
	if p.Attendance != nil {
		f.Set("attendance", strconv.Itoa(*p.Attendance))
	}
	if p.VisitAttendance != nil {
		f.Set("visit_attendance", strconv.Itoa(*p.VisitAttendance))
	}
	return f
}

func recordPath(companyID, recordID int64) string {
	return fmt.Sprintf("/record/%d/%d", companyID, recordID)
}

func (c *Client) GetRecord(ctx context.Context, companyID, recordID int64) (*Record, error) {
	var rec Record
	if err := c.getJSON(ctx, "get_record", recordPath(companyID, recordID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) UpdateRecordJSON(ctx context.Context, companyID, recordID int64, p UpdatePayload) error {
	return c.sendJSON(ctx, "update_record_json", http.MethodPut, recordPath(companyID, recordID), p, nil)
}

func (c *Client) UpdateRecordForm(ctx context.Context, companyID, recordID int64, p UpdatePayload) error {
	return c.do(ctx, request{
		op:          "update_record_form",
		method:      http.MethodPut,
		path:        recordPath(companyID, recordID),
		body:        []byte(p.Form().Encode()),
		contentType: "application/x-www-form-urlencoded; charset=UTF-8",
	}, nil)
}

// UpdateError reports a write where both bodies were refused. Unwrap lists
// the form error first, so errors.As finds the form leg's APIError.
type UpdateError struct {
	JSON error
	Form error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("form: %v; json: %v", e.Form, e.JSON)
}

func (e *UpdateError) Unwrap() []error { return []error{e.Form, e.JSON} }

// UpdateRecord tries JSON first and then the form body exactly once.
// onFallback, when set, sees the JSON error before the form attempt.
func (c *Client) UpdateRecord(ctx context.Context, companyID, recordID int64, p UpdatePayload, onFallback func(error)) error {
	jerr := c.UpdateRecordJSON(ctx, companyID, recordID, p)
	if jerr == nil {
		return nil
	}
	c.log.Warn("json update failed, retrying as form",
		logx.Int64("company_id", companyID), logx.Int64("record_id", recordID), logx.Err(jerr))
	if onFallback != nil {
		onFallback(jerr)
	}
	if ferr := c.UpdateRecordForm(ctx, companyID, recordID, p); ferr != nil {
		return &UpdateError{JSON: jerr, Form: ferr}
	}
	return nil
}

type ListQuery struct {
	CompanyID int64
	ClientID  int64
	StartDate string // YYYY-MM-DD
	EndDate   string
	Count     int
	Page      int
}

func (c *Client) ListRecords(ctx context.Context, q ListQuery) ([]Record, error) {
	v := url.Values{}
	if q.ClientID != 0 {
		v.Set("client_id", strconv.FormatInt(q.ClientID, 10))
	}
	if q.StartDate != "" {
		v.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("end_date", q.EndDate)
	}
	if q.Count <= 0 {
		q.Count = 10
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	v.Set("count", strconv.Itoa(q.Count))
	v.Set("page", strconv.Itoa(q.Page))

	var out []Record
	if err := c.getJSON(ctx, "list_records", fmt.Sprintf("/records/%d?%s", q.CompanyID, v.Encode()), &out); err != nil {
		return nil, err
	}
	return out, nil
}
