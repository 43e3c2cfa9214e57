// Package orchestrator abstracts the fleet-lifecycle actions a game-server
// agent takes against whatever substrate actually runs it, per spec.md
// §4.G's Orchestrator capability. Exactly one adapter is active per
// process, selected by the orchestration mode the agent is configured
// with.
package orchestrator

import "context"

// Orchestrator is the narrow contract every adapter implements. Ready
// marks the underlying process as having finished init and accepting
// connections; Health is called once per heartbeat to keep the
// orchestrator's own liveness probe fed; Shutdown requests termination of
// the server process (and, where the substrate supports it, the
// underlying compute resource).
type Orchestrator interface {
	Ready(ctx context.Context) error
	Health(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
