package serialmux

import (
	"math"
	"strconv"
	"strings"
)

// ParseValue reads one numeric value line as sent by the pendulum board or a
// reference anemometer. Blank, non-numeric and non-finite lines report false.
func ParseValue(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
