// Package timecode converts between wall-clock timestamps, frame indices
// and frame rates.
//
// All values are immutable: arithmetic returns new values and never
// mutates operands. The display format is always H:MM:SS.mmm (hours not
// zero-padded, fractional seconds to millisecond precision).
package timecode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedTimestamp is returned by Parse when the input is not a
// valid H:MM:SS(.mmm) expression.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// Timestamp stores a point in playback time, normalized to seconds.
type Timestamp struct {
	seconds float64
}

// Parse builds a Timestamp from an H:MM:SS(.mmm) expression.
//
// The expression must have exactly three colon-separated numeric fields.
// Fields may be fractional ("0:0:1.5" is one and a half seconds).
func Parse(s string) (Timestamp, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 3 {
		return Timestamp{}, fmt.Errorf("%w: %q (want H:MM:SS)", ErrMalformedTimestamp, s)
	}

	var parts [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Timestamp{}, fmt.Errorf("%w: %q (non-numeric field %q)", ErrMalformedTimestamp, s, f)
		}
		if v < 0 {
			return Timestamp{}, fmt.Errorf("%w: %q (negative field %q)", ErrMalformedTimestamp, s, f)
		}
		parts[i] = v
	}

	return FromSeconds(parts[0]*3600 + parts[1]*60 + parts[2]), nil
}

// FromSeconds builds a Timestamp from a seconds value.
func FromSeconds(seconds float64) Timestamp {
	return Timestamp{seconds: seconds}
}

// Seconds returns the canonical seconds value.
func (t Timestamp) Seconds() float64 {
	return t.seconds
}

// Add returns the sum of two timestamps as a new value.
func (t Timestamp) Add(o Timestamp) Timestamp {
	return Timestamp{seconds: t.seconds + o.seconds}
}

// Sub returns the difference of two timestamps as a new value.
func (t Timestamp) Sub(o Timestamp) Timestamp {
	return Timestamp{seconds: t.seconds - o.seconds}
}

// String formats the timestamp as H:MM:SS.mmm.
func (t Timestamp) String() string {
	// Round to millisecond first so 59.9996s does not print as "0:00:60.000".
	ms := math.Round(t.seconds * 1000)
	hours := int64(ms) / 3_600_000
	rem := ms - float64(hours)*3_600_000
	minutes := int64(rem) / 60_000
	seconds := (rem - float64(minutes)*60_000) / 1000

	return fmt.Sprintf("%d:%02d:%06.3f", hours, minutes, seconds)
}
