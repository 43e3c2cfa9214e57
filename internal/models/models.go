// Package models defines the wire and directory record shapes shared by the
// matchmaking API, the notification bus, and the game-server agent.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ServerState is the lifecycle state a GameServer record reports.
type ServerState string

const (
	ServerStateInit                ServerState = "init"
	ServerStateWaitingForPlacement ServerState = "waitingforplacement"
	ServerStateLoading             ServerState = "loading"
	ServerStateInGame              ServerState = "ingame"
	ServerStateShutdown            ServerState = "shutdown"
)

// Orchestration identifies which fleet-lifecycle adapter owns a server.
type Orchestration string

const (
	OrchestrationLocal    Orchestration = "local"
	OrchestrationAgones   Orchestration = "agones"
	OrchestrationGameLift Orchestration = "gamelift"
)

// GameServer is the directory record for a single game-server instance.
// Keyed by ServerID in the directory under gameserver:<uuid>.
type GameServer struct {
	ServerID      uuid.UUID     `json:"server_id"`
	AddrsV4       []string      `json:"addrs_v4,omitempty"`
	AddrsV6       []string      `json:"addrs_v6,omitempty"`
	Port          uint16        `json:"port"`
	State         ServerState   `json:"state"`
	Orchestration Orchestration `json:"orchestration"`
	GameSessionID *uuid.UUID    `json:"game_session_id,omitempty"`
	LastHeartbeat time.Time     `json:"last_heartbeat_at"`

	// OrchestratorMetadata is informational only (e.g. an Agones GameServer
	// name or the node a server landed on) — never read by matchmaking
	// logic or the admin status endpoint, and not filled in by the
	// heartbeat handler.
	OrchestratorMetadata map[string]string `json:"orchestrator_metadata,omitempty"`
}

// GameSession is the directory record for a single in-progress session.
// Keyed by SessionID in the directory under gamesession:<uuid>.
type GameSession struct {
	SessionID      uuid.UUID   `json:"session_id"`
	ServerID       uuid.UUID   `json:"server_id"`
	MaxPlayers     int         `json:"max_players"`
	ActivePlayers  []uuid.UUID `json:"active_player_ids"`
	PendingPlayers []uuid.UUID `json:"pending_player_ids"`
	LastHeartbeat  time.Time   `json:"last_heartbeat_at"`
}

// OpenSlots returns the number of free slots, clamped to zero so an
// accounting bug can never underflow into a negative capacity.
func (s *GameSession) OpenSlots() int {
	used := len(s.ActivePlayers) + len(s.PendingPlayers)
	open := s.MaxPlayers - used
	if open < 0 {
		return 0
	}
	return open
}

// GameSessionInfo is the heartbeat-carried session summary a server reports
// about the session it currently hosts.
type GameSessionInfo struct {
	GameSessionID    uuid.UUID   `json:"game_session_id"`
	MaxPlayers       int         `json:"max_players"`
	ActivePlayerIDs  []uuid.UUID `json:"active_player_ids"`
	PendingPlayerIDs []uuid.UUID `json:"pending_player_ids"`
}

// NotificationType enumerates the bus envelope's inner message kinds.
type NotificationType string

const (
	NotificationPlacementRequestV1  NotificationType = "placement_request_v1"
	NotificationReservationRequestV1 NotificationType = "reservation_request_v1"
)

// Notification is the bus envelope published to gameserver:notifs /
// gameclient:notifs and delivered to the subscriber matching Recipient.
type Notification struct {
	Recipient uuid.UUID        `json:"recipient"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
}

// PlacementRequestV1 is the inner message of a placement notification.
type PlacementRequestV1 struct {
	GameSessionID uuid.UUID   `json:"game_session_id"`
	PlayerIDs     []uuid.UUID `json:"player_ids"`
}

// ReservationRequestV1 is the inner message of a reservation notification.
type ReservationRequestV1 struct {
	GameSessionID uuid.UUID   `json:"game_session_id"`
	PlayerIDs     []uuid.UUID `json:"player_ids"`
}

// GameServerAddress is what find_server returns to the client.
type GameServerAddress struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}
