// Package backfill implements the backfill engine: finds a session with an
// open slot, reserves it, and waits for the server to confirm the pending
// member via its own heartbeat.
package backfill

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

// Engine is the backfill engine described in spec.md §4.E.
type Engine struct {
	registry *fleet.Registry
	dir      *directory.Directory
	timeout  time.Duration
	logger   *zap.Logger
}

func New(registry *fleet.Registry, dir *directory.Directory, timeout time.Duration, logger *zap.Logger) *Engine {
	return &Engine{registry: registry, dir: dir, timeout: timeout, logger: logger}
}

// Reserve walks the backfill map looking for a session that will actually
// accept userID, reserving via notification and waiting for the server's
// own heartbeat to reflect the pending member. It does not proactively
// remove stale backfill-map entries for sessions that are still healthy —
// open_slots there is corrected by the next heartbeat, not by this engine.
func (e *Engine) Reserve(ctx context.Context, userID uuid.UUID) (*models.GameServer, error) {
	candidates, err := e.registry.BackfillCandidates(ctx)
	if err != nil {
		return nil, err
	}

	for sessionID, slots := range candidates {
		if slots < 1 {
			continue
		}

		sess, err := e.registry.ReadSession(ctx, sessionID)
		if err != nil {
			if errs.IsNotFound(err) {
				if rmErr := e.registry.RemoveBackfillEntry(ctx, sessionID); rmErr != nil {
					e.logger.Warn("failed to clean up stale backfill entry", zap.Error(rmErr))
				}
				continue
			}
			return nil, err
		}

		srv, err := e.registry.ReadServer(ctx, sess.ServerID)
		if err != nil {
			if errs.IsNotFound(err) {
				e.logger.Warn("backfill session has no live server, deferring cleanup to TTL",
					zap.String("session_id", sessionID.String()))
				continue
			}
			return nil, err
		}

		if err := e.publishReservation(ctx, sess.ServerID, sessionID, userID); err != nil {
			return nil, err
		}

		ok, err := e.waitForPending(ctx, sessionID, userID)
		if err != nil {
			return nil, err
		}
		if ok {
			return srv, nil
		}
	}

	return nil, nil
}

func (e *Engine) publishReservation(ctx context.Context, serverID, sessionID, userID uuid.UUID) error {
	inner, err := json.Marshal(models.ReservationRequestV1{
		GameSessionID: sessionID,
		PlayerIDs:     []uuid.UUID{userID},
	})
	if err != nil {
		return errs.New(errs.KindCorrupt, "backfill.publishReservation: marshal inner", err)
	}

	envelope, err := json.Marshal(models.Notification{
		Recipient: serverID,
		Type:      models.NotificationReservationRequestV1,
		Message:   string(inner),
	})
	if err != nil {
		return errs.New(errs.KindCorrupt, "backfill.publishReservation: marshal envelope", err)
	}

	return e.dir.Publish(ctx, gameServerNotifChannel, envelope)
}

// waitForPending polls the session record once per second until userID
// appears in PendingPlayers (success) or the timeout elapses (give up on
// this candidate — the caller moves on to the next one).
func (e *Engine) waitForPending(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	deadline := time.NewTimer(e.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-deadline.C:
			e.logger.Warn("backfill reservation timed out", zap.String("session_id", sessionID.String()), zap.String("user_id", userID.String()))
			return false, nil
		case <-ticker.C:
			sess, err := e.registry.ReadSession(ctx, sessionID)
			if err != nil {
				if errs.IsNotFound(err) {
					return false, nil
				}
				return false, err
			}
			if containsUUID(sess.PendingPlayers, userID) {
				return true, nil
			}
		}
	}
}

func containsUUID(list []uuid.UUID, target uuid.UUID) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
