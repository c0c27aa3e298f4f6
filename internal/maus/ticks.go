package maus

import (
	"time"

	cerrors "mauz/internal/errors"
)

// ticksEpoch is tick zero: 0001-01-01T00:00:00Z, matching the Gregorian
// 100-nanosecond tick count §4.5 stores timestamps as.
var ticksEpoch = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

const ticksPerSecond = 10_000_000

// maxTicks bounds the tick count accepted from a header: 2^62 ticks is
// roughly 14,600 years past tick zero, well inside what time.Unix and
// time.Time represent.
const maxTicks = int64(1) << 62

// timeFromTicks converts a stored tick count to a UTC time.Time,
// rejecting values that do not fit a valid date (§4.5: "must fit in a
// valid date").
func timeFromTicks(ticks int64) (time.Time, error) {
	if ticks < 0 || ticks > maxTicks {
		return time.Time{}, cerrors.NewFormatError("timestamp ticks", cerrors.ErrInvalidData)
	}
	seconds := ticks / ticksPerSecond
	remainder := ticks % ticksPerSecond
	return time.Unix(ticksEpoch.Unix()+seconds, remainder*100).UTC(), nil
}

// ticksFromTime converts t to the Gregorian 100-ns tick count §4.5
// stores for the `Ers`/`Mod` options.
func ticksFromTime(t time.Time) int64 {
	t = t.UTC()
	return (t.Unix()-ticksEpoch.Unix())*ticksPerSecond + int64(t.Nanosecond())/100
}
