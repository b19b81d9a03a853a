package port

import "time"

// Clock abstracts time for deal expiry and timestamps. Implementations must
// be monotonic non-decreasing.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
