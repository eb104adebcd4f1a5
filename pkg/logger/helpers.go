package logger

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs a completed upstream HTTP request at a level matching its status.
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		l.WarnWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogRateLimit logs rate limiting events
func LogRateLimit(l Logger, source string, retryAfter time.Duration) {
	l.WithFields(map[string]interface{}{
		"source":      source,
		"retry_after": retryAfter.String(),
		"action":      "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogHarvestProgress logs the per-page progress line for a source.
func LogHarvestProgress(l Logger, source string, pageRecords, offset, total int) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(offset) / float64(total) * 100
	}

	l.WithFields(map[string]interface{}{
		"source":     source,
		"records":    pageRecords,
		"offset":     offset,
		"total":      total,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	}).Info(fmt.Sprintf("Processing %d issues in %s. Total progress: %d/%d", pageRecords, source, offset, total))
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string)                                    {}
func (nopLogger) Info(string)                                     {}
func (nopLogger) Warn(string)                                     {}
func (nopLogger) Error(string)                                    {}
func (n nopLogger) WithField(string, interface{}) Logger          { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger      { return n }
func (n nopLogger) WithError(error) Logger                        { return n }
func (nopLogger) DebugWithFields(string, map[string]interface{})  {}
func (nopLogger) InfoWithFields(string, map[string]interface{})   {}
func (nopLogger) WarnWithFields(string, map[string]interface{})   {}
func (nopLogger) ErrorWithFields(string, map[string]interface{})  {}
func (nopLogger) Zerolog() *zerolog.Logger                        { return nil }
