// Package arwllog adapts github.com/joeycumines/logiface to arwl's own
// tracing needs, the way github.com/joeycumines/logiface-stumpy adapts it to
// a JSON backend: a thin Event implementation plus a constructor wiring the
// two together. arwl only ever logs at debug level and only ever logs
// structured fields (awaiter id, kind, flags), so this package re-exports
// stumpy's ready-made Event rather than defining a new one.
package arwllog

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type arwl.Lock accepts. A nil *Logger is
// valid and simply discards every event -- arwl.Lock treats an unconfigured
// logger as "no logging"; logging is pure observability here and never
// affects state-machine behaviour.
type Logger = logiface.Logger[*stumpy.Event]

// New returns a Logger writing newline-delimited JSON to w at the given
// minimum level. Use logiface.LevelDebug to see arwl's admission/grant/
// release/drain tracing; logiface.LevelDisabled silences it entirely while
// still paying (effectively) zero cost, since logiface short-circuits
// disabled levels before building any fields.
func New(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		logiface.WithLevel[*stumpy.Event](level),
		stumpy.WithStumpy(stumpy.WithWriter(w)),
	)
}

// Discard is a Logger that drops every event; used as arwl.Lock's default
// when no WithLogger option is supplied.
func Discard() *Logger {
	return New(io.Discard, logiface.LevelDisabled)
}
