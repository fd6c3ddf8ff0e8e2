// Package bucket maps event timestamps to aligned time windows.
package bucket

import (
	"fmt"
	"strconv"
	"strings"
)

// Granularity is a named bucket width.
type Granularity struct {
	Label   string
	Seconds int64
}

// Bucket returns the window index and aligned lower bound for a timestamp.
// Timestamps are unix seconds and non-negative, so truncating division is
// floor division.
func (g Granularity) Bucket(ts int64) (index, start int64) {
	index = ts / g.Seconds
	start = index * g.Seconds
	return index, start
}

// Key builds the aggregate store key for a pair, granularity and window.
// Asset identifiers are hex addresses, so "-" never appears inside a part.
func Key(payGem, buyGem string, g Granularity, index int64) string {
	return payGem + "-" + buyGem + "-" + g.Label + "-" + strconv.FormatInt(index, 10)
}

// Default is the reference granularity set.
var Default = []Granularity{
	{Label: "hour", Seconds: 3600},
	{Label: "day", Seconds: 86400},
}

// ParseSet parses a "label:seconds,label:seconds" spec, e.g.
// "hour:3600,day:86400". Order is preserved; labels must be unique and
// widths positive.
func ParseSet(raw string) ([]Granularity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Default, nil
	}
	seen := make(map[string]struct{})
	var out []Granularity
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, secs, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("granularity %q: want label:seconds", part)
		}
		label = strings.TrimSpace(label)
		n, err := strconv.ParseInt(strings.TrimSpace(secs), 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("granularity %q: width must be a positive integer", part)
		}
		if label == "" || strings.Contains(label, "-") {
			return nil, fmt.Errorf("granularity %q: bad label", part)
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("granularity %q: duplicate label", part)
		}
		seen[label] = struct{}{}
		out = append(out, Granularity{Label: label, Seconds: n})
	}
	if len(out) == 0 {
		return Default, nil
	}
	return out, nil
}
