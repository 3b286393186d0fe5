package logrus

import (
	"fmt"
	"github.com/lukasz-zimnoch/dexly/dashboard"
	"github.com/sirupsen/logrus"
	"io"
)

type wrapper struct {
	*logrus.Entry
}

func (w *wrapper) WithField(key string, value interface{}) dashboard.Logger {
	return &wrapper{w.Entry.WithField(key, value)}
}

func (w *wrapper) WithFields(fields map[string]interface{}) dashboard.Logger {
	return &wrapper{w.Entry.WithFields(fields)}
}

// NewLogger wraps the given logrus logger.
func NewLogger(logger *logrus.Logger) dashboard.Logger {
	return &wrapper{logrus.NewEntry(logger)}
}

// ConfigureLogger builds a dedicated logger writing to out. The terminal
// owns stdout so the dashboard passes stderr here.
func ConfigureLogger(
	out io.Writer,
	format string,
	level string,
) (dashboard.Logger, error) {
	formatter, err := newFormatter(format)
	if err != nil {
		return nil, err
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("could not parse log level: [%w]", err)
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(formatter)
	logger.SetLevel(logLevel)

	return NewLogger(logger), nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyLevel: "severity",
		logrus.FieldKeyMsg:   "message",
	}

	switch format {
	case "json":
		return &logrus.JSONFormatter{FieldMap: fieldMap}, nil
	case "", "text":
		return &logrus.TextFormatter{
			FullTimestamp:    true,
			DisableColors:    true,
			QuoteEmptyFields: true,
			FieldMap:         fieldMap,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported log format: [%v]", format)
	}
}
