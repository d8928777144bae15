package sink

import (
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("sink")

// ISink receives the latest payload of a stream pipeline.
//
// SetLatestPayload is called by a single consumer goroutine, never concurrently,
// and the pipeline does not retain or modify the payload afterwards. Returning an
// error (or panicking) stops the pipeline.
type ISink interface {
	SetLatestPayload(payload []byte) error
}

// FuncSink adapts a function to the ISink interface
type FuncSink func(payload []byte) error

func (f FuncSink) SetLatestPayload(payload []byte) error {
	return f(payload)
}
