// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Setup applies a level name ("debug", "info", ...) and a format ("text" or
// "json") to the standard logger.
func Setup(level, format string) error {
	return configure(logrus.StandardLogger(), os.Stderr, level, format)
}

func configure(l *logrus.Logger, out io.Writer, level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	l.SetLevel(lvl)
	l.SetOutput(out)
	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// For returns a logger tagged with the component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
