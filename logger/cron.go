package logger

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type cronLogger struct {
	entry logrus.FieldLogger
}

// Cron adapts a logrus logger to cron.Logger. Cron's chatty info messages
// are logged at debug level.
func Cron(l logrus.FieldLogger) cron.Logger {
	return cronLogger{entry: l}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.entry.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}

		f[key] = keysAndValues[i+1]
	}

	return f
}
