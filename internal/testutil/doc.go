// Package testutil provides helpers shared by package tests: a migrated
// throwaway SQLite database and a log capture.
package testutil
