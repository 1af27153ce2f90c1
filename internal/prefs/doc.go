// Package prefs persists the converter's user preferences between runs.
//
// The document is a flat TOML file with a fixed set of keys. Loading never
// fails: unreadable or malformed files fall back to defaults, and keys
// missing from an older file are backfilled while present values are kept.
// Saving replaces the whole file atomically.
package prefs
