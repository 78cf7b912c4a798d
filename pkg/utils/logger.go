package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger initializes the global logger
func InitLogger(level, format, output, file string) error {
	logger := logrus.New()

	// Set log level
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(logLevel)

	// Set format
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	}

	// Set output
	if output == "file" && file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	Logger = logger
	return nil
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		// Initialize with defaults if not already initialized
		InitLogger("info", "json", "stdout", "")
	}
	return Logger
}

// ComponentLogger returns an entry tagged with the component name
func ComponentLogger(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}

// NewTestLogger returns a logger writing text lines to w, for capturing output in tests
func NewTestLogger(w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	return logger
}
