package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger, stamped with this node's cluster
// id so log lines from every ledgerd replica can be correlated in
// Cloud Logging. level overrides the default (info); pass "" to take
// the default.
func New(nodeID, level string) zerolog.Logger {
	// For Google Cloud Logging, the level field name should be "severity".
	// This allows Cloud Logging to automatically parse the log level.
	zerolog.LevelFieldName = "severity"

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("node_id", nodeID).Logger()

	// Use ConsoleWriter for local development for more readable logs.
	if os.Getenv("ENV") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	lvl := zerolog.InfoLevel
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	return logger.Level(lvl)
}
