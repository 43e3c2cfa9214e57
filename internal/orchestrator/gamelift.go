package orchestrator

import "context"

// GameLift is a placeholder adapter for fleets running on Amazon
// GameLift. No GameLift Server SDK module is available to wire in here;
// this satisfies the Orchestrator contract so the agent can be configured
// with Orchestration "gamelift" today without the process failing to
// start, but every method is currently a no-op.
//
// TODO: replace with the GameLift Server SDK's ProcessReady/ProcessEnding
// calls once that dependency is available.
type GameLift struct{}

func NewGameLift() *GameLift { return &GameLift{} }

func (g *GameLift) Ready(ctx context.Context) error   { return nil }
func (g *GameLift) Health(ctx context.Context) error  { return nil }
func (g *GameLift) Shutdown(ctx context.Context) error { return nil }
