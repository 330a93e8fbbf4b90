package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusLogger implements Logger using sirupsen/logrus.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger creates a LogrusLogger tagged with the component field.
func NewLogrusLogger(cfg Config, component string, w io.Writer) Logger {
	cfg.SetDefaults()
	l := logrus.New()
	l.SetOutput(w)
	if cfg.Format == "console" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &LogrusLogger{entry: l.WithField("component", component)}
}

func (l *LogrusLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }

func (l *LogrusLogger) Debugw(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *LogrusLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *LogrusLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *LogrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
