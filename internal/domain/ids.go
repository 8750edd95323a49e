package domain

import "strings"

// CompareIDs orders two numeric-string item ids without parsing them.
// Ids routinely exceed 64-bit precision, so a shorter id (after stripping
// leading zeros) is always the smaller one and equal-length ids compare
// lexicographically. The empty id sorts before every other id.
func CompareIDs(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return strings.Compare(a, b)
}

// MaxID returns the larger of two ids.
func MaxID(a, b string) string {
	if CompareIDs(a, b) >= 0 {
		return a
	}
	return b
}

// IsNumericID reports whether id is a non-empty string of ASCII digits.
func IsNumericID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}
