// Package logger provides the structured logging interface used across
// jiraharvest.
//
// It wraps zerolog: colored console output for terminals, JSON when the
// configured format is "json", and an optional append-only log file.
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("source", "KAFKA").Info("source started")
//	log.WarnWithFields("page fetch failed", map[string]interface{}{
//	    "offset":  150,
//	    "attempt": 2,
//	})
//
// Components take a Logger at construction. NewNopLogger and NewTestLogger
// serve tests; the latter records every message for assertions.
package logger
