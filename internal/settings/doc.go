// Package settings persists the operator-tunable bot settings (the posting interval).
//
// Drivers:
//   - "file": a single JSON (or YAML, by extension) document replaced atomically
//   - "sqlite": a single-row table in a SQLite database
//
// Load never fails: a missing or unreadable record yields Default().
package settings
