package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// Durations collects parse errors so callers check once at the end.
type Durations struct {
	errs []error
}

// Get returns the parsed value or 0, which every consumer treats as "use default".
func (d *Durations) Get(path, raw string) time.Duration {
	v, err := ParseDurationField(path, raw)
	if err != nil {
		d.errs = append(d.errs, err)
	}
	return v
}

func (d *Durations) Err() error {
	if len(d.errs) == 0 {
		return nil
	}
	return d.errs[0]
}
