// Package agent implements the Server Lifecycle Agent: the in-process
// state machine a game-server binary runs to report itself to the
// directory, accept placement/reservation notifications, and manage its
// own idle shutdown, per spec.md §4.G.
package agent

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mooncorn/fleetmatch/internal/apiclient"
	"github.com/mooncorn/fleetmatch/internal/models"
	"github.com/mooncorn/fleetmatch/internal/orchestrator"
)

// State is one of the five lifecycle states spec.md §4.G names.
type State string

const (
	StateStartup          State = "startup"
	StateWaitForPlacement State = "waitforplacement"
	StateInitServer       State = "initserver"
	StateInGame           State = "ingame"
	StateShutdown         State = "shutdown"
)

// Config carries the tunables spec.md gives default values for.
type Config struct {
	ServerID               uuid.UUID
	Port                   uint16
	Orchestration          models.Orchestration
	MaxPlayers             int
	HeartbeatInterval      time.Duration
	PendingPlayerTimeout   time.Duration
	SessionShutdownTimeout time.Duration
}

// Agent is one running game-server process's lifecycle manager. All
// mutable session/player state is guarded by mu, mirroring the teacher's
// process.Manager statusMu pattern.
type Agent struct {
	cfg    Config
	orch   orchestrator.Orchestrator
	client *apiclient.Client
	logger *zap.Logger

	mu             sync.Mutex
	state          State
	sessionID      uuid.UUID
	activePlayers  map[uuid.UUID]struct{}
	pendingPlayers map[uuid.UUID]struct{}
	pendingTimers  map[uuid.UUID]*time.Timer

	shutdownTimer *time.Timer
	addrsV4       []string
}

func New(cfg Config, orch orchestrator.Orchestrator, client *apiclient.Client, logger *zap.Logger) *Agent {
	return &Agent{
		cfg:            cfg,
		orch:           orch,
		client:         client,
		logger:         logger,
		state:          StateStartup,
		activePlayers:  make(map[uuid.UUID]struct{}),
		pendingPlayers: make(map[uuid.UUID]struct{}),
		pendingTimers:  make(map[uuid.UUID]*time.Timer),
		addrsV4:        discoverAddrs(logger),
	}
}

// discoverAddrs enumerates non-loopback, non-link-local IPv4 interfaces,
// skipping docker/bridge interfaces by name the way a host-networked
// fleet node would need to in order to advertise a routable address.
func discoverAddrs(logger *zap.Logger) []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		logger.Warn("failed to enumerate network interfaces", zap.Error(err))
		return nil
	}

	var addrs []string
	for _, iface := range ifaces {
		name := strings.ToLower(iface.Name)
		if strings.HasPrefix(name, "lo") || strings.HasPrefix(name, "docker") ||
			strings.HasPrefix(name, "br-") || strings.HasPrefix(name, "veth") {
			continue
		}
		ifAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifAddrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
				continue
			}
			addrs = append(addrs, ip4.String())
		}
	}
	return addrs
}

// Run starts the heartbeat loop and blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.orch.Ready(ctx); err != nil {
		return fmt.Errorf("agent.Run: orchestrator ready: %w", err)
	}

	a.mu.Lock()
	a.state = StateWaitForPlacement
	a.mu.Unlock()

	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	if err := a.heartbeat(ctx); err != nil {
		a.logger.Warn("initial heartbeat failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.heartbeat(ctx); err != nil {
				a.logger.Warn("heartbeat failed", zap.Error(err))
			}
			if err := a.orch.Health(ctx); err != nil {
				a.logger.Warn("orchestrator health ping failed", zap.Error(err))
			}
		}
	}
}

// heartbeat reports current state and, when hosting a session, the
// session's player roster to the matchmaking API.
func (a *Agent) heartbeat(ctx context.Context) error {
	a.mu.Lock()
	state := a.state
	var session *models.GameSessionInfo
	if state == StateInitServer || state == StateInGame {
		session = &models.GameSessionInfo{
			GameSessionID:    a.sessionID,
			MaxPlayers:       a.cfg.MaxPlayers,
			ActivePlayerIDs:  keysOf(a.activePlayers),
			PendingPlayerIDs: keysOf(a.pendingPlayers),
		}
	}
	addrs := a.addrsV4
	a.mu.Unlock()

	return a.client.Heartbeat(ctx, addrs, a.cfg.Port, serverStateOf(state), a.cfg.Orchestration, session)
}

func serverStateOf(s State) models.ServerState {
	switch s {
	case StateWaitForPlacement:
		return models.ServerStateWaitingForPlacement
	case StateInitServer:
		return models.ServerStateLoading
	case StateInGame:
		return models.ServerStateInGame
	case StateShutdown:
		return models.ServerStateShutdown
	default:
		return models.ServerStateInit
	}
}

func keysOf(m map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// HandlePlacement is invoked when a PlacementRequestV1 notification
// arrives. It is only honored while the agent is waiting for placement;
// a request arriving in any other state is stale and ignored.
func (a *Agent) HandlePlacement(req models.PlacementRequestV1) {
	a.mu.Lock()
	if a.state != StateWaitForPlacement {
		a.logger.Warn("ignoring placement request, not waiting for placement", zap.String("state", string(a.state)))
		a.mu.Unlock()
		return
	}
	if len(req.PlayerIDs) > a.cfg.MaxPlayers {
		a.logger.Warn("ignoring placement request, player count exceeds max players",
			zap.Int("player_count", len(req.PlayerIDs)), zap.Int("max_players", a.cfg.MaxPlayers))
		a.mu.Unlock()
		return
	}
	a.state = StateInitServer
	a.sessionID = req.GameSessionID
	for _, p := range req.PlayerIDs {
		a.pendingPlayers[p] = struct{}{}
		a.armPendingTimer(p)
	}
	a.mu.Unlock()

	a.logger.Info("placed", zap.String("session_id", req.GameSessionID.String()))

	a.mu.Lock()
	a.state = StateInGame
	a.resetShutdownTimerLocked()
	a.mu.Unlock()
}

// HandleReservation is invoked when a ReservationRequestV1 notification
// arrives for an already-hosted session, adding the named players as
// pending until they connect or their hold expires.
func (a *Agent) HandleReservation(req models.ReservationRequestV1) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateInGame || a.sessionID != req.GameSessionID {
		a.logger.Warn("ignoring reservation for unknown or inactive session",
			zap.String("session_id", req.GameSessionID.String()))
		return
	}

	if len(a.activePlayers)+len(a.pendingPlayers)+len(req.PlayerIDs) > a.cfg.MaxPlayers {
		a.logger.Warn("rejecting reservation, would exceed max players",
			zap.Int("active", len(a.activePlayers)), zap.Int("pending", len(a.pendingPlayers)),
			zap.Int("requested", len(req.PlayerIDs)), zap.Int("max_players", a.cfg.MaxPlayers))
		return
	}

	for _, p := range req.PlayerIDs {
		a.pendingPlayers[p] = struct{}{}
		a.armPendingTimer(p)
	}
	a.cancelShutdownTimerLocked()
}

// armPendingTimer must be called with mu held. It schedules the pending
// player's reservation to expire after PendingPlayerTimeout if the player
// never connects.
func (a *Agent) armPendingTimer(player uuid.UUID) {
	if t, ok := a.pendingTimers[player]; ok {
		t.Stop()
	}
	a.pendingTimers[player] = time.AfterFunc(a.cfg.PendingPlayerTimeout, func() {
		a.expirePending(player)
	})
}

func (a *Agent) expirePending(player uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pendingPlayers[player]; ok {
		delete(a.pendingPlayers, player)
		delete(a.pendingTimers, player)
		a.logger.Info("pending player reservation expired", zap.String("user_id", player.String()))
		a.resetShutdownTimerLocked()
	}
}

// ConfirmConnect is called by the hosted game process when a player
// actually connects, moving them from pending to active. This is the
// agent-side half of spec.md §4.G's client-connect handling; the hosted
// process is expected to call back into the agent over a local transport
// (e.g. a loopback RPC) it owns — out of scope here.
func (a *Agent) ConfirmConnect(player uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t, ok := a.pendingTimers[player]; ok {
		t.Stop()
		delete(a.pendingTimers, player)
	}
	delete(a.pendingPlayers, player)
	a.activePlayers[player] = struct{}{}
	a.cancelShutdownTimerLocked()
}

// Disconnect removes a player who has left the session. Once there are no
// active or pending players left, the idle-shutdown timer resumes.
func (a *Agent) Disconnect(player uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.activePlayers, player)
	a.resetShutdownTimerLocked()
}

// resetShutdownTimerLocked cancels any running shutdown timer and, if the
// session is now empty of active and pending players, arms a fresh one.
// Callers must hold mu.
func (a *Agent) resetShutdownTimerLocked() {
	a.cancelShutdownTimerLocked()
	if len(a.activePlayers) == 0 && len(a.pendingPlayers) == 0 {
		a.shutdownTimer = time.AfterFunc(a.cfg.SessionShutdownTimeout, a.onIdleShutdown)
	}
}

func (a *Agent) cancelShutdownTimerLocked() {
	if a.shutdownTimer != nil {
		a.shutdownTimer.Stop()
		a.shutdownTimer = nil
	}
}

func (a *Agent) onIdleShutdown() {
	a.mu.Lock()
	if len(a.activePlayers) > 0 || len(a.pendingPlayers) > 0 {
		a.mu.Unlock()
		return
	}
	a.state = StateShutdown
	a.mu.Unlock()

	a.logger.Info("session idle timeout reached, requesting shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.orch.Shutdown(ctx); err != nil {
		a.logger.Error("orchestrator shutdown request failed", zap.Error(err))
	}
}

// State returns the agent's current lifecycle state, used by tests and
// the heartbeat loop.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}
