package notify

import (
	"context"

	"benchhist/internal/regression"
)

// Emitter receives the report of every evaluated run.
type Emitter interface {
	Emit(ctx context.Context, report *regression.Report) error
}

// Notifier delivers a rendered message to one destination.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, report *regression.Report) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, report *regression.Report) error {
	return f(ctx, report)
}
