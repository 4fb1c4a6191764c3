package utils

import (
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
)

// Boards without an RTC boot with a wrong wall clock, so file names are
// stamped with an NTP corrected time once a sync succeeded.
var clockOffset atomic.Int64

// SyncClock queries server and stores the local clock offset.
func SyncClock(server string) (time.Duration, error) {
	resp, err := ntp.Query(server)
	if err != nil {
		return 0, err
	}
	if err = resp.Validate(); err != nil {
		return 0, err
	}
	clockOffset.Store(int64(resp.ClockOffset))
	logger.Infof("clock synced with %s, offset %s", server, resp.ClockOffset)

	return resp.ClockOffset, nil
}

// Now returns the local time corrected by the last NTP offset.
func Now() time.Time {
	return time.Now().Add(time.Duration(clockOffset.Load()))
}

func MsToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
