// Package logger provides structured logging for the daily login tool.
// It wraps logrus with immutable context fields and a few domain helpers.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus to provide structured logging
type Logger struct {
	*logrus.Logger
	fields logrus.Fields
	file   *os.File
}

// Config holds logger configuration
type Config struct {
	Level      string
	Format     string
	OutputFile string

	// Output replaces stdout when set
	Output io.Writer
}

// New creates a new logger instance with the given configuration
func New(cfg Config) (*Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	writers := []io.Writer{out}

	var file *os.File
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0755); err != nil {
			return nil, err
		}
		file, err = os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	log.SetOutput(io.MultiWriter(writers...))

	return &Logger{
		Logger: log,
		fields: make(logrus.Fields),
		file:   file,
	}, nil
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) derive(extra logrus.Fields) *Logger {
	fields := make(logrus.Fields, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &Logger{Logger: l.Logger, fields: fields, file: l.file}
}

// WithField returns a new logger with the given field added
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(logrus.Fields{key: value})
}

// WithFields returns a new logger with multiple fields added
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(fields)
}

// WithModule returns a new logger with the module field set
func (l *Logger) WithModule(module string) *Logger {
	return l.WithField("module", module)
}

// WithSite returns a new logger scoped to one site
func (l *Logger) WithSite(site string) *Logger {
	return l.WithField("site", site)
}

// WithError returns a new logger with error field added
func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

func (l *Logger) entry() *logrus.Entry {
	return l.Logger.WithFields(l.fields)
}

// Debug logs a debug message with context fields
func (l *Logger) Debug(msg string) { l.entry().Debug(msg) }

// Info logs an info message with context fields
func (l *Logger) Info(msg string) { l.entry().Info(msg) }

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) { l.entry().Infof(format, args...) }

// Warn logs a warning message with context fields
func (l *Logger) Warn(msg string) { l.entry().Warn(msg) }

// Error logs an error message with context fields
func (l *Logger) Error(msg string) { l.entry().Error(msg) }

// StealthAction logs a human-like input action with details
func (l *Logger) StealthAction(action string, details map[string]interface{}) {
	fields := map[string]interface{}{"stealth_action": action}
	for k, v := range details {
		fields[k] = v
	}
	l.WithFields(fields).Debug("Stealth action performed")
}

// BrowserAction logs a browser action
func (l *Logger) BrowserAction(action string, url string) {
	l.WithFields(map[string]interface{}{
		"browser_action": action,
		"url":            url,
	}).Debug("Browser action")
}

// SiteVisit logs the start of a visit to a site
func (l *Logger) SiteVisit(site string, url string) {
	l.WithFields(map[string]interface{}{
		"site": site,
		"url":  url,
	}).Infof("Visiting %s", url)
}

// LoginAttempt logs a login form submission. The address is masked.
func (l *Logger) LoginAttempt(site string, email string) {
	l.WithFields(map[string]interface{}{
		"site":  site,
		"email": MaskEmail(email),
	}).Infof("Logging into %s", site)
}

// ProfileConfirmed logs that the authenticated profile page was reached
func (l *Logger) ProfileConfirmed(site string, calendar string) {
	l.WithFields(map[string]interface{}{
		"site":     site,
		"calendar": calendar,
	}).Infof("Accessed profile page on %s", site)
}

// MaskEmail hides the local part of an address except its first character
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
