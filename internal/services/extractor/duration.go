package extractor

import (
	"fmt"
	"math"
)

// EffectiveDuration resolves the output cap in seconds for a request.
// A nil or zero request selects def; the result never exceeds max. A max of
// zero disables trimming and the result is then zero as well.
func EffectiveDuration(requested *float64, def, max float64) (float64, error) {
	if max <= 0 {
		if requested != nil {
			if err := validateDuration(*requested); err != nil {
				return 0, err
			}
		}
		return 0, nil
	}

	if def <= 0 || def > max {
		def = max
	}

	d := def
	if requested != nil {
		if err := validateDuration(*requested); err != nil {
			return 0, err
		}
		if *requested > 0 {
			d = *requested
		}
	}

	return math.Min(d, max), nil
}

func validateDuration(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return fmt.Errorf("%w: duration must be a positive number", ErrInvalidRequest)
	}
	return nil
}
