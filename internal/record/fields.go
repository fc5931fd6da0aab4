package record

import (
	"fmt"
	"strings"
)

// Dash stands in for missing values in every rendered message.
const Dash = "—"

func (d *Data) Phone() string {
	if d == nil || d.Client == nil {
		return ""
	}
	return d.Client.Phone.String()
}

// ClientName is display_name, then name; "" when both are empty.
func (d *Data) ClientName() string {
	if d == nil || d.Client == nil {
		return ""
	}
	if n := d.Client.DisplayName.String(); n != "" {
		return n
	}
	return d.Client.Name.String()
}

func (d *Data) StaffName() string {
	if d == nil {
		return ""
	}
	if d.Staff != nil && d.Staff.Name.String() != "" {
		return d.Staff.Name.String()
	}
	if d.Composite != nil && len(d.Composite.Staff) > 0 {
		return d.Composite.Staff[0].Name.String()
	}
	return ""
}

func (d *Data) StaffID() int64 {
	if d == nil {
		return 0
	}
	if d.Staff != nil && d.Staff.ID != 0 {
		return d.Staff.ID.Int64()
	}
	if d.Composite != nil && len(d.Composite.Staff) > 0 {
		return d.Composite.Staff[0].ID.Int64()
	}
	return 0
}

// ServiceTitles keeps non-empty titles in order.
func (d *Data) ServiceTitles() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.Services))
	for _, s := range d.Services {
		if t := s.Title.String(); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ServicesText joins titles with ", " or returns Dash.
func (d *Data) ServicesText() string {
	t := d.ServiceTitles()
	if len(t) == 0 {
		return Dash
	}
	return strings.Join(t, ", ")
}

// DateTime prefers "YYYY-MM-DD HH:mm:ss" in date, then an ISO datetime.
// Time is cut to HH:mm. Missing parts are Dash.
func (d *Data) DateTime() (date, clock string) {
	if d == nil {
		return Dash, Dash
	}
	if s := string(d.Date); strings.Contains(s, " ") {
		datePart, timePart, _ := strings.Cut(s, " ")
		return orDash(datePart), orDash(cut5(timePart))
	}
	if s := string(d.Datetime); strings.Contains(s, "T") {
		datePart, rest, _ := strings.Cut(s, "T")
		rest, _, _ = strings.Cut(rest, "+")
		rest, _, _ = strings.Cut(rest, "Z")
		return orDash(datePart), orDash(cut5(rest))
	}
	return Dash, Dash
}

// CreatedByAdmin reports a non-empty created_user_id.
func (d *Data) CreatedByAdmin() bool {
	if d == nil || !d.CreatedUserID.Set() {
		return false
	}
	n, ok := d.CreatedUserID.Number()
	return !ok || n != 0
}

// RecordLink is short_link, then link, then the public record page.
func (e Event) RecordLink() string {
	if e.Data != nil {
		if l := e.Data.ShortLink.String(); l != "" {
			return l
		}
		if l := e.Data.Link.String(); l != "" {
			return l
		}
	}
	if e.CompanyID == 0 || e.ResourceID == 0 {
		return ""
	}
	return fmt.Sprintf("https://yclients.com/record/%d/%d", e.CompanyID, e.ResourceID)
}

// ReviewLink is review_link, else the staff page on the booking widget
// when widgetID is configured and a staff id is known.
func (e Event) ReviewLink(widgetID string) string {
	if e.Data != nil {
		if l := e.Data.ReviewLink.String(); l != "" {
			return l
		}
	}
	staff := e.Data.StaffID()
	if widgetID == "" || e.CompanyID == 0 || staff == 0 {
		return ""
	}
	return fmt.Sprintf("https://n%s.yclients.com/company/%d/select-master/master-info/%d/%d",
		widgetID, e.CompanyID, e.CompanyID, staff)
}

// MaskPhone keeps the first five and last three characters.
func MaskPhone(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return Dash
	}
	if len(p) <= 7 {
		return p
	}
	return p[:5] + "****" + p[len(p)-3:]
}

// Or returns s, or def when s is blank.
func Or(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func orDash(s string) string { return Or(s, Dash) }

func cut5(s string) string {
	if len(s) > 5 {
		return s[:5]
	}
	return s
}
