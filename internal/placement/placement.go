// Package placement implements the placement engine: pops an idle server,
// instructs it to host a new session, and waits for it to confirm.
package placement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mooncorn/fleetmatch/internal/directory"
	"github.com/mooncorn/fleetmatch/internal/errs"
	"github.com/mooncorn/fleetmatch/internal/fleet"
	"github.com/mooncorn/fleetmatch/internal/models"
)

const (
	gameServerNotifChannel = "gameserver:notifs"
	pollInterval           = 1 * time.Second
)

// Engine is the placement engine described in spec.md §4.D.
type Engine struct {
	registry *fleet.Registry
	dir      *directory.Directory
	timeout  time.Duration
	logger   *zap.Logger
}

func New(registry *fleet.Registry, dir *directory.Directory, timeout time.Duration, logger *zap.Logger) *Engine {
	return &Engine{registry: registry, dir: dir, timeout: timeout, logger: logger}
}

// Allocate obtains an idle server, instructs it to host a new session for
// userID, and returns the server's record once it confirms InGame with
// sessionID. Returns (nil, nil) on timeout, no server available, or a
// detected mismatch — none of those are faults, per spec.md §7.
func (e *Engine) Allocate(ctx context.Context, userID, sessionID uuid.UUID) (*models.GameServer, error) {
	serverID, err := e.registry.TakeWaitingServer(ctx)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	srv, err := e.registry.ReadServer(ctx, serverID)
	if err != nil {
		if errs.IsNotFound(err) {
			e.logger.Warn("waiting server vanished before placement", zap.String("server_id", serverID.String()))
			return nil, nil
		}
		return nil, err
	}
	if srv.State != models.ServerStateWaitingForPlacement {
		e.logger.Warn("popped server was not waiting for placement",
			zap.String("server_id", serverID.String()), zap.String("state", string(srv.State)))
		return nil, nil
	}

	if err := e.publishPlacement(ctx, serverID, sessionID, userID); err != nil {
		return nil, err
	}

	return e.waitForPlacement(ctx, serverID, sessionID)
}

func (e *Engine) publishPlacement(ctx context.Context, serverID, sessionID, userID uuid.UUID) error {
	inner, err := json.Marshal(models.PlacementRequestV1{
		GameSessionID: sessionID,
		PlayerIDs:     []uuid.UUID{userID},
	})
	if err != nil {
		return errs.New(errs.KindCorrupt, "placement.publishPlacement: marshal inner", err)
	}

	envelope, err := json.Marshal(models.Notification{
		Recipient: serverID,
		Type:      models.NotificationPlacementRequestV1,
		Message:   string(inner),
	})
	if err != nil {
		return errs.New(errs.KindCorrupt, "placement.publishPlacement: marshal envelope", err)
	}

	return e.dir.Publish(ctx, gameServerNotifChannel, envelope)
}

// waitForPlacement polls the server record once per second until it
// reports InGame with sessionID (success), reports a different session
// (mismatch — abort), or the timeout elapses. The notification already
// sent is never revoked; a late-arriving confirmation after timeout is an
// observable ghost session reclaimed by the server's own idle timers.
func (e *Engine) waitForPlacement(ctx context.Context, serverID, sessionID uuid.UUID) (*models.GameServer, error) {
	deadline := time.NewTimer(e.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-deadline.C:
			e.logger.Warn("placement timed out", zap.String("server_id", serverID.String()), zap.String("session_id", sessionID.String()))
			return nil, nil
		case <-ticker.C:
			srv, err := e.registry.ReadServer(ctx, serverID)
			if err != nil {
				if errs.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			if srv.GameSessionID != nil && *srv.GameSessionID != sessionID {
				e.logger.Warn("placement mismatch, server claimed by a different session",
					zap.String("server_id", serverID.String()),
					zap.String("expected_session", sessionID.String()),
					zap.String("actual_session", srv.GameSessionID.String()))
				return nil, nil
			}
			if srv.State == models.ServerStateInGame && srv.GameSessionID != nil && *srv.GameSessionID == sessionID {
				return srv, nil
			}
		}
	}
}
