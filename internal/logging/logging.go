// Package logging builds the process logger: a slog fan-out to text, GELF
// and OpenTelemetry handlers with dynamic context attributes.
package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath returns the session log file for name started at sessionStart.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}
