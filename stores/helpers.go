package stores

import (
	"time"

	"github.com/oarkflow/date"
)

// scanFlexibleTime normalizes the timestamp representations drivers hand
// back: sqlite returns TEXT, other drivers time.Time.
func scanFlexibleTime(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := date.Parse(v); err == nil {
			return t
		}
	case []byte:
		if t, err := date.Parse(string(v)); err == nil {
			return t
		}
	case int64:
		return time.Unix(0, v)
	}
	return time.Time{}
}
