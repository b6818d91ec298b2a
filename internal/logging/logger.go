// Package logging provides structured logging for the attendance hub core.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// global logger instance
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger with a JSON formatter.
// Unknown level strings fall back to info.
func Init(out io.Writer, level string) {
	once.Do(func() {
		global = logrus.New()
		global.SetOutput(out)
		global.SetFormatter(&logrus.JSONFormatter{})

		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		global.SetLevel(lvl)
	})
}

// Get returns the global logger instance.
func Get() *logrus.Logger {
	if global == nil {
		Init(os.Stdout, "info")
	}
	return global
}

// entry builds a logrus entry from the optional context maps.
func entry(context ...map[string]interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for _, c := range context {
		for k, v := range c {
			fields[k] = v
		}
	}
	return Get().WithFields(fields)
}

// Debug logs a debug message.
func Debug(message string, context ...map[string]interface{}) {
	entry(context...).Debug(message)
}

// Info logs an info message.
func Info(message string, context ...map[string]interface{}) {
	entry(context...).Info(message)
}

// Warn logs a warning message.
func Warn(message string, context ...map[string]interface{}) {
	entry(context...).Warn(message)
}

// Error logs an error message.
func Error(message string, err error, context ...map[string]interface{}) {
	e := entry(context...)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(message)
}
