package helpers

import "strconv"

// FormatFloat prints value with as many digits as needed to read it back exactly.
func FormatFloat(value float64) string {
	if value == 0 {
		// also catches -0
		return "0"
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
