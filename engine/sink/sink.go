// Package sink delivers connector operations to a destination. Each sink
// plays the orchestrator's role for local runs: upserts are written by
// primary key and checkpoints record the last sync state.
package sink

import (
	"context"
	"errors"

	"github.com/WessleyAI/vinsync/engine/connector"
)

// Sink consumes operations emitted by connector.Update.
type Sink interface {
	Emit(ctx context.Context, op connector.Operation) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, op connector.Operation) error

func (f Func) Emit(ctx context.Context, op connector.Operation) error { return f(ctx, op) }

// Multi fans every operation out to all sinks in order. It stops at the
// first error.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, op connector.Operation) error {
	for _, s := range m {
		if err := s.Emit(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// ErrUnknownOp is returned for an operation type a sink cannot handle.
var ErrUnknownOp = errors.New("unknown operation type")

// Emitter returns s.Emit as a connector.Emitter.
func Emitter(s Sink) connector.Emitter {
	return s.Emit
}
