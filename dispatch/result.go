package dispatch

import (
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/value"
)

// Result is the outcome of a managed call. A call that raised a managed
// exception has no value and carries the captured exception instead.
type Result struct {
	Exception *engine.Exception
	Value     value.Box
	HasValue  bool
}

// Failed reports whether the call raised a managed exception.
func (r Result) Failed() bool { return r.Exception != nil }

// LogSink writes absorbed exceptions to a zap logger at Error level.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) HandleException(ex *engine.Exception) {
	l := s.Logger
	if l == nil {
		l = Logger()
	}
	l.Error("managed exception",
		zap.String("type", ex.Type),
		zap.String("method", ex.Method),
		zap.String("message", ex.Message),
		zap.String("diagnostic", ex.Diagnostic()))
}

// Sinks fans an exception out to several handlers.
type Sinks []engine.ExceptionHandler

func (s Sinks) HandleException(ex *engine.Exception) {
	for _, h := range s {
		if h != nil {
			h.HandleException(ex)
		}
	}
}
