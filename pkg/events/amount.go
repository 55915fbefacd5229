package events

import (
	"fmt"
	"strconv"
)

// Amounts travel as decimal strings. A structpb number is a float64 and
// rounds integers above 2^53.

// FormatAmount renders an amount for an event payload
func FormatAmount(amount int64) string {
	return strconv.FormatInt(amount, 10)
}

// ParseAmount reads an amount written by FormatAmount
func ParseAmount(s string) (int64, error) {
	amount, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}
