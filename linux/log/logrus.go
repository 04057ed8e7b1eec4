// Package log is the concrete ble.Logger this module ships, backed by
// logrus. [AMBIENT STACK]
package log

import (
	"github.com/sirupsen/logrus"

	"github.com/knx-ble/attgatt/ble"
)

// Adapter wraps a *logrus.Entry to satisfy ble.Logger.
type Adapter struct {
	entry *logrus.Entry
}

// New builds a root Adapter from a fresh logrus.Logger with the given
// level.
func New(level logrus.Level) *Adapter {
	l := logrus.New()
	l.SetLevel(level)
	return &Adapter{entry: logrus.NewEntry(l)}
}

// Wrap adapts an existing *logrus.Entry.
func Wrap(e *logrus.Entry) *Adapter {
	return &Adapter{entry: e}
}

func (a *Adapter) Debugf(format string, args ...interface{}) { a.entry.Debugf(format, args...) }
func (a *Adapter) Infof(format string, args ...interface{})  { a.entry.Infof(format, args...) }
func (a *Adapter) Warnf(format string, args ...interface{})  { a.entry.Warnf(format, args...) }
func (a *Adapter) Errorf(format string, args ...interface{}) { a.entry.Errorf(format, args...) }

func (a *Adapter) ChildLogger(fields map[string]interface{}) ble.Logger {
	return &Adapter{entry: a.entry.WithFields(logrus.Fields(fields))}
}
