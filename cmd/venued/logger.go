// logger.go - Structured logging for the venue daemon
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the daemon logger: human-readable console output plus an
// optional JSON log file. The returned closer owns the file handle.
func NewLogger(level string, logFile string) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}

	var writer io.Writer = console
	var closer io.Closer
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	logger := zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
	return logger, closer, nil
}
