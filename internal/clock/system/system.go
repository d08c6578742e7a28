// Package system provides the wall clock used for crawl timestamps.
package system

import "time"

// Clock reports UTC wall time.
type Clock struct{}

// New creates a Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
