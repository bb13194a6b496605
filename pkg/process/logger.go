// Package process provides the daemon-plumbing glue shared by the
// fdfs-trackerd binary: logger construction, config-file/env binding on
// top of cfgstruct, and the small helpers cmd/fdfs-trackerd uses to turn
// a cobra.Command into a running process.
package process

import (
	"strings"

	"go.uber.org/zap"
)

// indirected so tests can fake a construction failure, mirroring the
// teacher's package-level zapNewDevelopment/zapNewProduction vars.
var (
	zapNewDevelopment = zap.NewDevelopment
	zapNewProduction  = zap.NewProduction
)

// NewLogger builds a zap.Logger appropriate for the given level string.
// "dev"/"development" builds a human-readable development logger; any
// other value (including the empty string) builds the production JSON
// logger.
func NewLogger(level string) (*zap.Logger, error) {
	switch strings.ToLower(level) {
	case "dev", "development":
		return zapNewDevelopment()
	default:
		return zapNewProduction()
	}
}
