// Package phone normalizes client phone numbers to the +7XXXXXXXXXX form the
// booking platform stores.
package phone

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

const DefaultRegion = "RU"

// Digits keeps only ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize maps 8XXXXXXXXXX and 10-digit local numbers to +7XXXXXXXXXX.
// Anything else is returned as +digits. "" when raw has no digits.
func Normalize(raw string) string {
	d := Digits(raw)
	if d == "" {
		return ""
	}
	if len(d) == 11 && d[0] == '8' {
		d = "7" + d[1:]
	}
	if len(d) == 10 {
		return "+7" + d
	}
	return "+" + d
}

// Valid reports whether p parses as a possible number in region.
func Valid(p, region string) bool {
	if region == "" {
		region = DefaultRegion
	}
	num, err := libphonenumber.Parse(p, region)
	if err != nil {
		return false
	}
	return libphonenumber.IsValidNumber(num)
}

// E164 formats p with libphonenumber, falling back to Normalize when parsing fails.
func E164(p, region string) string {
	if region == "" {
		region = DefaultRegion
	}
	num, err := libphonenumber.Parse(p, region)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return Normalize(p)
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}

// Variants lists spellings a platform search may match: as given, digits,
// and the 8/+7 forms for Russian numbers.
func Variants(p string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	add(strings.TrimSpace(p))
	d := Digits(p)
	add(d)
	if len(d) == 11 && d[0] == '7' {
		add("8" + d[1:])
		add("+" + d)
	}
	return out
}
