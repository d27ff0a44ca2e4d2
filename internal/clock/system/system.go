// Package system provides the wall clock used outside tests.
package system

import (
	"fmt"
	"time"
)

// Clock reads the wall clock in a fixed location.
type Clock struct {
	loc *time.Location
}

// New returns a clock for loc. A nil loc means UTC.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{loc: loc}
}

// Load returns a clock for the named IANA zone; "Local" is the host zone and
// an empty name is UTC.
func Load(name string) (Clock, error) {
	if name == "" {
		return New(nil), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Clock{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return New(loc), nil
}

// Now returns the current time in the clock's location.
func (c Clock) Now() time.Time {
	if c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}
