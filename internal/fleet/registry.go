// Package fleet implements the fleet registry: the exclusive write path for
// GameServer and GameSession directory records, and the indexes the
// placement and backfill engines read from. It owns no business logic of
// its own beyond the invariants spec.md §3/§4.C call out.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mooncorn/fleetmatch/internal/directory"
	"github.com/mooncorn/fleetmatch/internal/errs"
	"github.com/mooncorn/fleetmatch/internal/models"
)

const (
	serversIndex        = "gameservers.index"
	waitingServersIndex = "gameservers:waiting.index"
	sessionsIndex       = "gamesessions.index"
	backfillMap         = "gamesessions:backfill"
)

func serverKey(id uuid.UUID) string  { return "gameserver:" + id.String() }
func sessionKey(id uuid.UUID) string { return "gamesession:" + id.String() }

// Registry is the fleet registry described in spec.md §4.C.
type Registry struct {
	dir        *directory.Directory
	serverTTL  time.Duration
	sessionTTL time.Duration
	logger     *zap.Logger
}

func New(dir *directory.Directory, serverTTL, sessionTTL time.Duration, logger *zap.Logger) *Registry {
	return &Registry{dir: dir, serverTTL: serverTTL, sessionTTL: sessionTTL, logger: logger}
}

// WriteServer upserts a GameServer record: the record itself, the
// gameservers.index lease, and (conditionally) the waiting-servers index,
// all in one pipeline, evicting stale members from both indexes first.
// This is the heartbeat write path; ordering matches spec.md §5: record,
// then server index, then waiting index.
func (r *Registry) WriteServer(ctx context.Context, srv *models.GameServer) error {
	srv.LastHeartbeat = time.Now()

	payload, err := json.Marshal(srv)
	if err != nil {
		return errs.New(errs.KindCorrupt, "fleet.WriteServer: marshal", err)
	}

	now := srv.LastHeartbeat
	key := serverKey(srv.ServerID)
	member := srv.ServerID.String()

	if err := r.dir.ZRemStale(ctx, serversIndex, now, r.serverTTL); err != nil {
		r.logger.Warn("failed pruning stale server index entries", zap.Error(err))
	}
	if err := r.dir.ZRemStale(ctx, waitingServersIndex, now, r.serverTTL); err != nil {
		r.logger.Warn("failed pruning stale waiting-server index entries", zap.Error(err))
	}

	err = r.dir.Pipeline(ctx, func(p redis.Pipeliner) {
		p.Set(ctx, key, payload, r.serverTTL)
		p.ZAdd(ctx, serversIndex, redis.Z{Score: float64(now.Unix()), Member: member})
		if srv.State == models.ServerStateWaitingForPlacement {
			p.ZAdd(ctx, waitingServersIndex, redis.Z{Score: float64(now.Unix()), Member: member})
		} else {
			p.ZRem(ctx, waitingServersIndex, member)
		}
	})
	if err != nil {
		return fmt.Errorf("fleet.WriteServer: pipeline: %w", err)
	}
	return nil
}

// WriteSession upserts a GameSession record and maintains the backfill map:
// sessions with open slots are present in gamesessions:backfill, full
// sessions are removed from it.
func (r *Registry) WriteSession(ctx context.Context, sess *models.GameSession) error {
	sess.LastHeartbeat = time.Now()

	payload, err := json.Marshal(sess)
	if err != nil {
		return errs.New(errs.KindCorrupt, "fleet.WriteSession: marshal", err)
	}

	now := sess.LastHeartbeat
	key := sessionKey(sess.SessionID)
	member := sess.SessionID.String()
	openSlots := sess.OpenSlots()

	if err := r.dir.ZRemStale(ctx, sessionsIndex, now, r.sessionTTL); err != nil {
		r.logger.Warn("failed pruning stale session index entries", zap.Error(err))
	}

	err = r.dir.Pipeline(ctx, func(p redis.Pipeliner) {
		p.Set(ctx, key, payload, r.sessionTTL)
		p.ZAdd(ctx, sessionsIndex, redis.Z{Score: float64(now.Unix()), Member: member})
		if openSlots > 0 {
			p.HSet(ctx, backfillMap, member, openSlots)
		} else {
			p.HDel(ctx, backfillMap, member)
		}
	})
	if err != nil {
		return fmt.Errorf("fleet.WriteSession: pipeline: %w", err)
	}
	return nil
}

// ReadServer returns the server record, or a NotFound/Corrupt error.
func (r *Registry) ReadServer(ctx context.Context, id uuid.UUID) (*models.GameServer, error) {
	raw, err := r.dir.Get(ctx, serverKey(id))
	if err != nil {
		return nil, err
	}
	var srv models.GameServer
	if err := json.Unmarshal(raw, &srv); err != nil {
		r.logger.Warn("corrupt server record", zap.String("server_id", id.String()), zap.Error(err))
		return nil, errs.New(errs.KindCorrupt, "fleet.ReadServer: unmarshal", err)
	}
	return &srv, nil
}

// ReadSession returns the session record, or a NotFound/Corrupt error.
func (r *Registry) ReadSession(ctx context.Context, id uuid.UUID) (*models.GameSession, error) {
	raw, err := r.dir.Get(ctx, sessionKey(id))
	if err != nil {
		return nil, err
	}
	var sess models.GameSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		r.logger.Warn("corrupt session record", zap.String("session_id", id.String()), zap.Error(err))
		return nil, errs.New(errs.KindCorrupt, "fleet.ReadSession: unmarshal", err)
	}
	return &sess, nil
}

// TakeWaitingServer atomically pops the lowest-score entry from the
// waiting-servers index, removing it from the pool. At-most-once: two
// concurrent callers can never receive the same server_id.
func (r *Registry) TakeWaitingServer(ctx context.Context) (uuid.UUID, error) {
	member, err := r.dir.ZPopMin(ctx, waitingServersIndex)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(member)
	if err != nil {
		return uuid.Nil, errs.New(errs.KindCorrupt, "fleet.TakeWaitingServer: parse member", err)
	}
	return id, nil
}

// BackfillCandidates returns session_id -> open_slot_count for every
// session currently in the backfill map, skipping non-positive entries
// defensively (the map is only ever written with positive counts, but a
// corrupt hash entry should not be trusted blindly).
func (r *Registry) BackfillCandidates(ctx context.Context) (map[uuid.UUID]int, error) {
	raw, err := r.dir.HGetAll(ctx, backfillMap)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(raw))
	for k, v := range raw {
		id, err := uuid.Parse(k)
		if err != nil {
			continue
		}
		var slots int
		if _, err := fmt.Sscanf(v, "%d", &slots); err != nil || slots < 1 {
			continue
		}
		out[id] = slots
	}
	return out, nil
}

// RemoveBackfillEntry deletes a stale session_id -> slots entry, used when
// the backfill engine discovers the session record itself has expired.
func (r *Registry) RemoveBackfillEntry(ctx context.Context, sessionID uuid.UUID) error {
	return r.dir.HDel(ctx, backfillMap, sessionID.String())
}

// WaitingServerCount reports the current size of the waiting-servers pool,
// used by the admin status endpoint.
func (r *Registry) WaitingServerCount(ctx context.Context) (int64, error) {
	return r.dir.ZCard(ctx, waitingServersIndex)
}
