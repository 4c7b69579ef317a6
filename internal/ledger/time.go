package ledger

import "time"

// The ledger keeps its own clock: seconds since the ledger epoch
// (2000-01-01T00:00:00Z), advanced by validated ledger close times. All
// time-gated fields on intents (finish-after, cancel-after, credential
// expiration) are expressed in this domain, never in wall-clock time.
const epochOffset int64 = 946684800

// Time is a ledger-relative timestamp in seconds since the ledger epoch.
type Time uint64

func FromTime(t time.Time) Time {
	u := t.Unix()
	if u <= epochOffset {
		return 0
	}
	return Time(u - epochOffset)
}

func (t Time) Unix() int64 {
	return int64(t) + epochOffset
}

func (t Time) Std() time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}

func (t Time) Add(d time.Duration) Time {
	return t + Time(d/time.Second)
}

// Before reports whether t is strictly earlier than other.
func (t Time) Before(other Time) bool {
	return t < other
}
