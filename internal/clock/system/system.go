// Package system provides the wall clock used to stamp crawl runs.
package system

import "time"

// Clock reports UTC wall time.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to microseconds, the resolution
// Postgres keeps for timestamptz.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
