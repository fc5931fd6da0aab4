package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Snapshot is the user-visible projection of a record. Field order is fixed,
// so equal snapshots serialise to equal bytes.
type Snapshot struct {
	Date      string   `json:"date"`
	Time      string   `json:"time"`
	Staff     string   `json:"staff"`
	Services  []string `json:"services"`
	Confirmed Value    `json:"confirmed"`
	Deleted   Value    `json:"deleted"`
}

func (d *Data) Snapshot() Snapshot {
	date, clock := d.DateTime()
	s := Snapshot{
		Date:     date,
		Time:     clock,
		Staff:    orDash(d.StaffName()),
		Services: d.ServiceTitles(),
		Deleted:  RawValue("false"),
	}
	if s.Services == nil {
		s.Services = []string{}
	}
	if d != nil {
		s.Confirmed = d.Confirmed.Value
		if d.Deleted.Set() {
			s.Deleted = d.Deleted
		}
	}
	return s
}

// Hash is the hex sha256 of the canonical JSON form.
func (s Snapshot) Hash() string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
