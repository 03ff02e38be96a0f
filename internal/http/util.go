package httpx

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

const dateLayout = "2006-01-02"

// parseStrictIntQuery returns the integer value of a query param or def when absent.
// A malformed value is a validation error.
func parseStrictIntQuery(q url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.ValidationField(key, key+" must be an integer")
	}
	return i, nil
}

// parseTimeQuery accepts RFC 3339 timestamps or YYYY-MM-DD dates in loc. A date used as an
// upper bound (endOfDay) means the start of the following day.
func parseTimeQuery(q url.Values, key string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		return nil, apperrors.ValidationField(key, key+" must be an RFC 3339 timestamp or a YYYY-MM-DD date")
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1)
	}
	return &d, nil
}
