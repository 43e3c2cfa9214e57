package orchestrator

import "context"

// Local is the no-op adapter used outside any fleet orchestrator, e.g. a
// developer running the agent directly against a local Redis. Its Shutdown
// is a no-op: there is no substrate underneath it to tear down, and the
// process itself keeps running.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) Ready(ctx context.Context) error   { return nil }
func (l *Local) Health(ctx context.Context) error  { return nil }
func (l *Local) Shutdown(ctx context.Context) error { return nil }
