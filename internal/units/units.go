// Package units provides shared constants and validation for speed units
package units

// Unit constants
const (
	MPS   = "mps"
	MPH   = "mph"
	KMPH  = "kmph"
	KPH   = "kph"
	Knots = "kt"
)

const (
	mphPerMPS   = 2.2369362920544
	kmphPerMPS  = 3.6
	knotsPerMPS = 1.9438444924406
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH, Knots}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph, kt"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units leave the value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * mphPerMPS
	case KMPH, KPH:
		return speedMPS * kmphPerMPS
	case Knots:
		return speedMPS * knotsPerMPS
	default:
		return speedMPS
	}
}

// ConvertToMPS converts a speed in the given units back to meters per second,
// e.g. readings from a reference anemometer that reports in knots.
func ConvertToMPS(speed float64, fromUnits string) float64 {
	switch fromUnits {
	case MPH:
		return speed / mphPerMPS
	case KMPH, KPH:
		return speed / kmphPerMPS
	case Knots:
		return speed / knotsPerMPS
	default:
		return speed
	}
}
