package chatdb

import (
	"math"
	"time"
)

// appleEpochOffset is the number of Unix seconds at the Apple epoch
// (2001-01-01 00:00:00 UTC), which message.date counts from.
const appleEpochOffset = 978307200

// nanosThreshold separates legacy seconds-based values from modern
// nanosecond values. 1e12 seconds is far beyond any plausible date, and
// 1e12 nanoseconds after the Apple epoch is still January 2001, years
// before the store existed, so no real value is ambiguous.
const nanosThreshold = 1_000_000_000_000

// dateExpr normalizes message.date to Apple-epoch nanoseconds in SQL so
// range filters and ordering work against both legacy and modern stores.
const dateExpr = "CASE WHEN m.date >= 1000000000000 THEN m.date ELSE m.date * 1000000000 END"

// fromAppleTime converts a raw message.date value to a UTC time.
func fromAppleTime(v int64) time.Time {
	if v >= nanosThreshold {
		return time.Unix(appleEpochOffset+v/1e9, v%1e9).UTC()
	}
	return time.Unix(appleEpochOffset+v, 0).UTC()
}

// Seconds past the Apple epoch beyond which the nanosecond conversion
// would overflow int64 (around year 2262, and the mirror before 1740).
const (
	maxBoundSecs = math.MaxInt64 / 1_000_000_000
	minBoundSecs = math.MinInt64 / 1_000_000_000
)

// toAppleNanos converts a time to Apple-epoch nanoseconds for use as a
// query bound against dateExpr. Times outside the representable range
// clamp to the int64 extremes, so a far-out bound stays effectively
// unbounded instead of wrapping negative.
func toAppleNanos(t time.Time) int64 {
	secs := t.Unix() - appleEpochOffset
	if secs >= maxBoundSecs {
		return math.MaxInt64
	}
	if secs <= minBoundSecs {
		return math.MinInt64
	}
	return secs*1e9 + int64(t.Nanosecond())
}
