/*
Package log provides structured logging for clusterver using zerolog.

# Usage

	import "github.com/cuemby/clusterver/pkg/log"

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	compLog := log.WithComponent("versionmanager")
	compLog.Info().Str("node_id", "node-1").Msg("reconciler started")

	groupLog := log.WithGroup("controller")
	groupLog.Warn().Msg("leadership lost")

Child loggers compose: log.WithComponent returns a zerolog.Logger that
can itself be further scoped with .With().

# Output

JSONOutput selects line-delimited JSON for machine consumption; when
false, output is a human-readable console writer with RFC3339
timestamps, intended for local development.
*/
package log
