package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// The loggers are ready at import time so library consumers (the device SDK
// packages in client/) never dereference a nil logger. The split is by output
// stream; Printf on either logs at info level, so neither filters it away.
var (
	InfoLogger  = newLogger(os.Stdout)
	ErrorLogger = newLogger(os.Stderr)
)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// InitLogger resets both loggers to their default configuration. Called by
// main at startup; optional everywhere else.
func InitLogger() {
	InfoLogger = newLogger(os.Stdout)
	ErrorLogger = newLogger(os.Stderr)
}
