// Package protocol defines the wire encoding of the environmental
// characteristics: ASCII fixed-point decimals with two fractional digits.
package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxValueBytes is the longest value a characteristic carries: a 16-byte
// C string buffer less its terminator.
const MaxValueBytes = 15

// InitialValue is exposed before the first successful sample.
const InitialValue = "NaN"

// FormatValue renders v with exactly two fractional digits, truncated to
// MaxValueBytes. NaN renders as InitialValue.
func FormatValue(v float64) []byte {
	if math.IsNaN(v) {
		return []byte(InitialValue)
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if len(s) > MaxValueBytes {
		s = s[:MaxValueBytes]
	}
	return []byte(s)
}

// ParseValue decodes a characteristic value back into a float. The
// InitialValue sentinel decodes to NaN.
func ParseValue(data []byte) (float64, error) {
	s := strings.TrimSpace(string(data))
	if s == InitialValue {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("protocol: parse value %q: %w", s, err)
	}
	return v, nil
}
