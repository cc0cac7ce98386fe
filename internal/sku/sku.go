// Package sku turns caller-supplied product identifiers into comparison keys.
package sku

import "strings"

var stripper = strings.NewReplacer(" ", "", "#", "")

// Normalize returns the canonical comparison key for an identifier: spaces and
// '#' removed, surrounding whitespace trimmed, lower-cased. It is total and
// idempotent.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(stripper.Replace(s)))
}

// Equal reports whether two identifiers share the same normalized key.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
