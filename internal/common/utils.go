package common

import "strings"

// NormalizeCity trims a city name and collapses inner whitespace.
func NormalizeCity(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CityKey is the case-insensitive identity of a city name.
func CityKey(s string) string {
	return strings.ToLower(NormalizeCity(s))
}

// SameCity reports whether two city names refer to the same place by name.
func SameCity(a, b string) bool {
	return CityKey(a) == CityKey(b)
}
