package service

import "time"

// Clock reports the current time. Token issuance and validation read time
// only through it.
type Clock func() time.Time

// NewSystemClock returns a Clock backed by time.Now.
func NewSystemClock() Clock {
	return time.Now
}
