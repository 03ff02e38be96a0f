package service

import (
	"time"

	"github.com/target/hrm-scheduler/internal/data"
)

// OrgClock reads the current time and evaluates periods in the organisation timezone.
// The zero value uses the system clock and UTC.
type OrgClock struct {
	Location     *time.Location
	TimeProvider data.TimeProvider
}

// NewOrgClock returns a clock for loc backed by the system time.
func NewOrgClock(loc *time.Location) OrgClock {
	return OrgClock{Location: loc, TimeProvider: data.RealTimeProvider{}}
}

// Now returns the current instant in the organisation timezone.
func (c OrgClock) Now() time.Time {
	tp := c.TimeProvider
	if tp == nil {
		tp = data.RealTimeProvider{}
	}
	return tp.Now().In(c.Loc())
}

// Loc returns the organisation timezone.
func (c OrgClock) Loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
