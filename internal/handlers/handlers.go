// Package handlers provides the small set of built-in handlers the
// cmd/* binaries register by default, so a fresh checkout has something
// to dispatch and schedule out of the box. User-supplied handler
// business logic is explicitly out of scope for the engine (spec.md
// §1); these exist only to exercise the Handler Registry contract end
// to end.
package handlers

import (
	"context"
	"log/slog"

	"github.com/rezkam/chronoqueue/registry"
)

// Log is a handler that writes its argument bag to the structured log
// and returns it unchanged. Useful as a smoke-test handler for the
// scheduler and queue commands.
type Log struct{}

func (Log) Name() string { return "log" }

func (Log) Execute(ctx context.Context, args map[string]any) (any, error) {
	slog.InfoContext(ctx, "log handler invoked", "args", args)
	return args, nil
}

// Register populates reg with every built-in handler Factory.
func Register(reg *registry.Registry) {
	reg.Register("log", func() (registry.Handler, error) { return Log{}, nil })
}
