package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/lazycache"
)

type LogrusLogger struct{ E *logrus.Entry }

var _ lazycache.Logger = LogrusLogger{}

func (l LogrusLogger) Debug(msg string, f lazycache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f lazycache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f lazycache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f lazycache.Fields) { l.with(f).Error(msg) }

// with maps an "err" field onto logrus.ErrorKey so hooks and formatters pick it up.
func (l LogrusLogger) with(f lazycache.Fields) *logrus.Entry {
	e := l.E
	if err, ok := f["err"].(error); ok {
		e = e.WithError(err)
	}
	fields := make(logrus.Fields, len(f))
	for k, v := range f {
		if k != "err" {
			fields[k] = v
		}
	}
	return e.WithFields(fields)
}
