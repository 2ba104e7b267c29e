package log

import (
	gosiplog "github.com/ghettovoice/gosip/log"
	"github.com/sirupsen/logrus"
)

// SIPLogger adapts the logrus bridge to the gosip logger interface.
func SIPLogger() gosiplog.Logger {
	return &sipAdapter{entry: Logrus().WithField("component", "sip")}
}

type sipAdapter struct {
	entry  *logrus.Entry
	prefix string
}

func (a *sipAdapter) Fields() gosiplog.Fields {
	fields := make(gosiplog.Fields, len(a.entry.Data))
	for k, v := range a.entry.Data {
		fields[k] = v
	}
	return fields
}

func (a *sipAdapter) WithFields(fields map[string]interface{}) gosiplog.Logger {
	return &sipAdapter{entry: a.entry.WithFields(fields), prefix: a.prefix}
}

func (a *sipAdapter) Prefix() string {
	return a.prefix
}

func (a *sipAdapter) WithPrefix(prefix string) gosiplog.Logger {
	return &sipAdapter{entry: a.entry.WithField("prefix", prefix), prefix: prefix}
}

// SetLevel changes the level of the underlying logrus logger.
func (a *sipAdapter) SetLevel(level uint32) {
	a.entry.Logger.SetLevel(logrus.Level(level))
}

func (a *sipAdapter) Print(args ...interface{})                 { a.entry.Print(args...) }
func (a *sipAdapter) Printf(format string, args ...interface{}) { a.entry.Printf(format, args...) }
func (a *sipAdapter) Trace(args ...interface{})                 { a.entry.Trace(args...) }
func (a *sipAdapter) Tracef(format string, args ...interface{}) { a.entry.Tracef(format, args...) }
func (a *sipAdapter) Debug(args ...interface{})                 { a.entry.Debug(args...) }
func (a *sipAdapter) Debugf(format string, args ...interface{}) { a.entry.Debugf(format, args...) }
func (a *sipAdapter) Info(args ...interface{})                  { a.entry.Info(args...) }
func (a *sipAdapter) Infof(format string, args ...interface{})  { a.entry.Infof(format, args...) }
func (a *sipAdapter) Warn(args ...interface{})                  { a.entry.Warn(args...) }
func (a *sipAdapter) Warnf(format string, args ...interface{})  { a.entry.Warnf(format, args...) }
func (a *sipAdapter) Error(args ...interface{})                 { a.entry.Error(args...) }
func (a *sipAdapter) Errorf(format string, args ...interface{}) { a.entry.Errorf(format, args...) }
func (a *sipAdapter) Fatal(args ...interface{})                 { a.entry.Fatal(args...) }
func (a *sipAdapter) Fatalf(format string, args ...interface{}) { a.entry.Fatalf(format, args...) }
func (a *sipAdapter) Panic(args ...interface{})                 { a.entry.Panic(args...) }
func (a *sipAdapter) Panicf(format string, args ...interface{}) { a.entry.Panicf(format, args...) }
