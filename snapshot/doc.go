// Package snapshot writes and reads point-in-time copies of the board: the
// active orders plus the settings they were computed with. A snapshot is a
// recovery aid and an export format; the store stays the source of truth.
//
// It also owns the portable settings file format (JSON or YAML) used by
// settings export and import.
package snapshot
