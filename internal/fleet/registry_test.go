package fleet

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/mooncorn/fleetmatch/internal/directory"
	"github.com/mooncorn/fleetmatch/internal/errs"
	"github.com/mooncorn/fleetmatch/internal/models"
)

var testContainer *tcredis.RedisContainer

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}
	testContainer = container

	code := m.Run()

	testContainer.Terminate(ctx)
	os.Exit(code)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	ctx := context.Background()

	connStr, err := testContainer.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(connStr)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	require.NoError(t, client.FlushAll(ctx).Err())

	dir := directory.NewFromClient(client)
	return New(dir, time.Minute, time.Minute, zap.NewNop())
}

func TestWriteAndReadServer(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	srv := &models.GameServer{
		ServerID: uuid.New(),
		Port:     7777,
		State:    models.ServerStateWaitingForPlacement,
	}
	require.NoError(t, r.WriteServer(ctx, srv))

	got, err := r.ReadServer(ctx, srv.ServerID)
	require.NoError(t, err)
	require.Equal(t, srv.ServerID, got.ServerID)
	require.Equal(t, models.ServerStateWaitingForPlacement, got.State)
}

func TestReadServerNotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.ReadServer(context.Background(), uuid.New())
	require.Error(t, err)
	require.True(t, errs.IsNotFound(err))
}

func TestTakeWaitingServerIsAtMostOnce(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	srv := &models.GameServer{ServerID: uuid.New(), State: models.ServerStateWaitingForPlacement}
	require.NoError(t, r.WriteServer(ctx, srv))

	got, err := r.TakeWaitingServer(ctx)
	require.NoError(t, err)
	require.Equal(t, srv.ServerID, got)

	_, err = r.TakeWaitingServer(ctx)
	require.Error(t, err)
	require.True(t, errs.IsNotFound(err))
}

func TestWriteServerRemovesFromWaitingIndexOnceInGame(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	id := uuid.New()
	srv := &models.GameServer{ServerID: id, State: models.ServerStateWaitingForPlacement}
	require.NoError(t, r.WriteServer(ctx, srv))

	sessionID := uuid.New()
	srv.State = models.ServerStateInGame
	srv.GameSessionID = &sessionID
	require.NoError(t, r.WriteServer(ctx, srv))

	_, err := r.TakeWaitingServer(ctx)
	require.Error(t, err)
	require.True(t, errs.IsNotFound(err))
}

func TestBackfillMapTracksOpenSlots(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	sess := &models.GameSession{
		SessionID:     uuid.New(),
		ServerID:      uuid.New(),
		MaxPlayers:    3,
		ActivePlayers: []uuid.UUID{uuid.New()},
	}
	require.NoError(t, r.WriteSession(ctx, sess))

	candidates, err := r.BackfillCandidates(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, candidates[sess.SessionID])

	sess.ActivePlayers = append(sess.ActivePlayers, uuid.New(), uuid.New())
	require.NoError(t, r.WriteSession(ctx, sess))

	candidates, err = r.BackfillCandidates(ctx)
	require.NoError(t, err)
	require.NotContains(t, candidates, sess.SessionID)
}

func TestOpenSlotsNeverNegative(t *testing.T) {
	sess := &models.GameSession{
		MaxPlayers:    1,
		ActivePlayers: []uuid.UUID{uuid.New(), uuid.New()},
	}
	require.Equal(t, 0, sess.OpenSlots())
}
