// Package songkey canonicalizes free-text song titles into lookup keys.
//
// The key is the join point between the live ledger and durable storage:
// changing Normalize orphans already-persisted songs, so any future
// sanitization step needs a migration for existing keys.
package songkey

import "strings"

// MaxKeyLen is the longest normalized key the ledger accepts, in runes.
const MaxKeyLen = 30

// Normalize maps a raw song title to its canonical lookup key: surrounding
// whitespace trimmed, inner whitespace runs collapsed to a single space,
// lower-cased. Pure and deterministic.
func Normalize(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

// TooLong reports whether a normalized key exceeds MaxKeyLen.
func TooLong(key string) bool {
	count := 0
	for range key {
		count++
		if count > MaxKeyLen {
			return true
		}
	}
	return false
}
