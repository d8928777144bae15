package sink

import (
	"errors"
	"sync/atomic"
)

// MultiSink passes every payload to all sinks in order. All sinks are called
// even if one fails, the errors are joined.
type MultiSink []ISink

func (m MultiSink) SetLatestPayload(payload []byte) error {
	var errs []error
	for _, s := range m {
		if err := s.SetLatestPayload(payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink logs the size of every n-th payload at debug level
type LogSink struct {
	Name  string
	Every uint64
	count atomic.Uint64
}

func (l *LogSink) SetLatestPayload(payload []byte) error {
	n := l.count.Add(1)
	if l.Every <= 1 || n%l.Every == 0 {
		Logger.Debugf("[%s] payload #%d: %d bytes", l.Name, n, len(payload))
	}
	return nil
}

// Count returns the number of payloads seen
func (l *LogSink) Count() uint64 {
	return l.count.Load()
}
