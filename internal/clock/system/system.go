// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements ingest.Clock using local time, the zone history timestamps are written in.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current local time.
func (Clock) Now() time.Time {
	return time.Now().In(time.Local)
}
