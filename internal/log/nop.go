package log

import "context"

// Nop returns a Logger that discards everything. FromContext falls back to
// it so code running outside a request never needs a nil check.
func Nop() Logger { return discard{} }

type discard struct{}

func (d discard) With(...any) Logger { return d }

func (discard) Debug(context.Context, string, ...any) {}

func (discard) Info(context.Context, string, ...any) {}

func (discard) Warn(context.Context, string, ...any) {}

func (discard) Error(context.Context, error, string, ...any) {}

func (discard) Sync() error { return nil }
