package agent

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mooncorn/fleetmatch/internal/apiclient"
	"github.com/mooncorn/fleetmatch/internal/models"
	"github.com/mooncorn/fleetmatch/internal/orchestrator"
)

func newTestAgent(t *testing.T, pendingTimeout, shutdownTimeout time.Duration) *Agent {
	t.Helper()
	cfg := Config{
		ServerID:               uuid.New(),
		Port:                   7777,
		Orchestration:          models.OrchestrationLocal,
		MaxPlayers:             3,
		HeartbeatInterval:      time.Hour,
		PendingPlayerTimeout:   pendingTimeout,
		SessionShutdownTimeout: shutdownTimeout,
	}
	client := apiclient.New("http://unused.invalid", "", zap.NewNop())
	return New(cfg, orchestrator.NewLocal(), client, zap.NewNop())
}

func TestHandlePlacementTransitionsToInGame(t *testing.T) {
	a := newTestAgent(t, time.Minute, time.Minute)
	a.mu.Lock()
	a.state = StateWaitForPlacement
	a.mu.Unlock()

	sessionID := uuid.New()
	userID := uuid.New()
	a.HandlePlacement(models.PlacementRequestV1{GameSessionID: sessionID, PlayerIDs: []uuid.UUID{userID}})

	require.Equal(t, StateInGame, a.State())
}

func TestHandlePlacementRejectedWhenOverCapacity(t *testing.T) {
	a := newTestAgent(t, time.Minute, time.Minute)
	a.mu.Lock()
	a.state = StateWaitForPlacement
	a.mu.Unlock()

	sessionID := uuid.New()
	playerIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	a.HandlePlacement(models.PlacementRequestV1{GameSessionID: sessionID, PlayerIDs: playerIDs})

	require.Equal(t, StateWaitForPlacement, a.State())
	a.mu.Lock()
	defer a.mu.Unlock()
	require.Empty(t, a.pendingPlayers)
}

func TestHandlePlacementIgnoredWhenNotWaiting(t *testing.T) {
	a := newTestAgent(t, time.Minute, time.Minute)
	a.mu.Lock()
	a.state = StateInGame
	a.mu.Unlock()

	a.HandlePlacement(models.PlacementRequestV1{GameSessionID: uuid.New()})
	require.Equal(t, StateInGame, a.State())
}

func TestConfirmConnectMovesPendingToActive(t *testing.T) {
	a := newTestAgent(t, time.Minute, time.Minute)
	userID := uuid.New()

	a.mu.Lock()
	a.state = StateInGame
	a.pendingPlayers[userID] = struct{}{}
	a.mu.Unlock()

	a.ConfirmConnect(userID)

	a.mu.Lock()
	_, pending := a.pendingPlayers[userID]
	_, active := a.activePlayers[userID]
	a.mu.Unlock()

	require.False(t, pending)
	require.True(t, active)
}

func TestPendingReservationExpiresWithoutConnect(t *testing.T) {
	a := newTestAgent(t, 50*time.Millisecond, time.Minute)
	userID := uuid.New()

	a.mu.Lock()
	a.state = StateInGame
	a.mu.Unlock()

	a.HandleReservation(models.ReservationRequestV1{GameSessionID: a.sessionID, PlayerIDs: []uuid.UUID{userID}})

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		_, ok := a.pendingPlayers[userID]
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestHandleReservationRejectedWhenWouldExceedCapacity(t *testing.T) {
	a := newTestAgent(t, time.Minute, time.Minute)
	u1, u2, u3, u4 := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	a.mu.Lock()
	a.state = StateInGame
	a.activePlayers[u1] = struct{}{}
	a.activePlayers[u2] = struct{}{}
	a.activePlayers[u3] = struct{}{}
	sessionID := a.sessionID
	a.mu.Unlock()

	a.HandleReservation(models.ReservationRequestV1{GameSessionID: sessionID, PlayerIDs: []uuid.UUID{u4}})

	a.mu.Lock()
	defer a.mu.Unlock()
	_, pending := a.pendingPlayers[u4]
	require.False(t, pending)
}

func TestIdleShutdownFiresWhenSessionEmpty(t *testing.T) {
	a := newTestAgent(t, time.Minute, 50*time.Millisecond)
	a.mu.Lock()
	a.state = StateInGame
	a.resetShutdownTimerLocked()
	a.mu.Unlock()

	require.Eventually(t, func() bool {
		return a.State() == StateShutdown
	}, time.Second, 10*time.Millisecond)
}

func TestIdleShutdownSkippedWhilePlayersActive(t *testing.T) {
	a := newTestAgent(t, time.Minute, 50*time.Millisecond)
	userID := uuid.New()

	a.mu.Lock()
	a.state = StateInGame
	a.activePlayers[userID] = struct{}{}
	a.resetShutdownTimerLocked()
	a.mu.Unlock()

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, StateInGame, a.State())
}

func TestDiscoverAddrsSkipsLoopback(t *testing.T) {
	addrs := discoverAddrs(zap.NewNop())
	for _, a := range addrs {
		require.NotEqual(t, "127.0.0.1", a)
	}
}

func TestRunReachesWaitForPlacementAfterReady(t *testing.T) {
	a := newTestAgent(t, time.Minute, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return a.State() == StateWaitForPlacement
	}, time.Second, 5*time.Millisecond)

	<-done
}
