// Package types defines the core data structures of the rallygraph knowledge store.
// These types represent documents, their embedded chunks, the entities mentioned
// in them and the typed relationships that connect everything into a graph.
package types

import "strings"

// NormalizeKey returns the canonical identity key for a title or name:
// trimmed, lower-cased and with internal whitespace collapsed to single spaces.
// Two nodes with the same key are the same node.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
