package ranking

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidHalfLife is returned when a decay half-life is not a positive finite number.
var ErrInvalidHalfLife = errors.New("invalid half-life: must be greater than 0")

const secondsPerDay = 86400.0

// Decay computes the temporal weight of an event that happened at eventTime.
//
// Formula: exp(-ln(2) * elapsedSeconds / (halfLifeDays * 86400))
//
// The result is 1.0 when no time has elapsed, halves every halfLifeDays and
// never reaches 0 for finite inputs. Events timestamped after now are treated
// as happening now.
func Decay(eventTime time.Time, halfLifeDays float64, now time.Time) (float64, error) {
	if halfLifeDays <= 0 || math.IsNaN(halfLifeDays) || math.IsInf(halfLifeDays, 0) {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidHalfLife, halfLifeDays)
	}

	elapsed := now.Sub(eventTime).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	weight := math.Exp(-math.Ln2 * elapsed / (halfLifeDays * secondsPerDay))
	if weight <= 0 {
		// exp underflows for extremely old events
		weight = math.SmallestNonzeroFloat64
	}
	return weight, nil
}
