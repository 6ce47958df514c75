// Package units provides shared constants and validation for speed units.
//
// Kinematics are computed in pixels per second; conversion to world units
// requires a metres-per-pixel calibration for the camera.
package units

// Unit constants
const (
	PXPS = "pxps"
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{PXPS, MPS, MPH, KMPH, KPH}

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
	return "pxps, mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from pixels per second to the target units
// using the supplied metres-per-pixel calibration. A non-positive calibration
// disables world-unit conversion and the pixel speed is returned unchanged.
func ConvertSpeed(speedPxPerSec, metresPerPixel float64, targetUnits string) float64 {
	if targetUnits == PXPS || metresPerPixel <= 0 {
		return speedPxPerSec
	}
	speedMPS := speedPxPerSec * metresPerPixel
	switch targetUnits {
	case MPH:
		return speedMPS * 2.23694 // m/s to mph
	case KMPH, KPH:
		return speedMPS * 3.6 // m/s to km/h
	case MPS:
		return speedMPS
	default:
		return speedPxPerSec // unknown unit, leave in pixel space
	}
}
