// Package timezone converts between local wall-clock millis and UTC millis.
//
// The zone offset is always evaluated at the instant being converted, so a range
// that spans a daylight-saving transition gets a different offset at each end.
package timezone

import (
	"fmt"
	"time"
)

// OffsetFunc returns the local-minus-UTC offset valid at the given instant.
type OffsetFunc func(instant time.Time) time.Duration

// LocationOffset evaluates offsets from the rules of loc.
func LocationOffset(loc *time.Location) OffsetFunc {
	return func(instant time.Time) time.Duration {
		_, secs := instant.In(loc).Zone()
		return time.Duration(secs) * time.Second
	}
}

// FixedOffset always returns d.
func FixedOffset(d time.Duration) OffsetFunc {
	return func(time.Time) time.Duration { return d }
}

// Local evaluates offsets from the host zone.
func Local() OffsetFunc {
	return LocationOffset(time.Local)
}

// Load resolves an IANA zone name. Empty and "Local" select the host zone.
func Load(name string) (OffsetFunc, error) {
	if name == "" || name == "Local" {
		return Local(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return LocationOffset(loc), nil
}

// ToUTCMillis subtracts the offset evaluated at localMillis.
func ToUTCMillis(localMillis int64, offsetAt OffsetFunc) int64 {
	return localMillis - offsetAt(time.UnixMilli(localMillis)).Milliseconds()
}

// ToLocalMillis adds the offset evaluated at utcMillis.
func ToLocalMillis(utcMillis int64, offsetAt OffsetFunc) int64 {
	return utcMillis + offsetAt(time.UnixMilli(utcMillis)).Milliseconds()
}
