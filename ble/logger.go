package ble

// Logger is the structured logging sink used throughout this module. The
// concrete implementation is linux/log's Adapter, which wraps a
// *logrus.Entry.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// ChildLogger returns a Logger that prefixes or tags its output with
	// the given fields, without mutating the receiver.
	ChildLogger(fields map[string]interface{}) Logger
}

// NopLogger discards everything. Useful as a zero value for tests and
// callers that don't wire a Logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...interface{})        {}
func (NopLogger) Infof(string, ...interface{})         {}
func (NopLogger) Warnf(string, ...interface{})         {}
func (NopLogger) Errorf(string, ...interface{})        {}
func (NopLogger) ChildLogger(map[string]interface{}) Logger { return NopLogger{} }
