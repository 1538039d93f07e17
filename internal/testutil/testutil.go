// Package testutil provides small helpers shared by package tests.
package testutil

import (
	"io"
	"log/slog"
	"testing"
)

// Logger returns a slog.Logger that discards output. Tests that need to
// inspect log records should install their own handler instead.
func Logger(_ *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
