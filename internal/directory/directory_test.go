package directory

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/mooncorn/fleetmatch/internal/errs"
)

var testDir *Directory
var testContainer *tcredis.RedisContainer

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}
	testContainer = container

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	opts, err := goredis.ParseURL(connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse connection string: %v\n", err)
		os.Exit(1)
	}
	testDir = NewFromClient(goredis.NewClient(opts))

	code := m.Run()

	testContainer.Terminate(ctx)
	os.Exit(code)
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	err := testDir.SetWithTTL(ctx, "test:key", []byte("hello"), time.Minute)
	require.NoError(t, err)

	v, err := testDir.Get(ctx, "test:key")
	require.NoError(t, err)
	require.Equal(t, "hello", string(v))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := testDir.Get(ctx, "test:does-not-exist")
	require.Error(t, err)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestZPopMinEmptyReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := testDir.ZPopMin(ctx, "test:empty-index")
	require.Error(t, err)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestZPopMinIsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	index := "test:waiting"
	require.NoError(t, testDir.ZAdd(ctx, index, "server-a", 1))

	first, err := testDir.ZPopMin(ctx, index)
	require.NoError(t, err)
	require.Equal(t, "server-a", first)

	_, err = testDir.ZPopMin(ctx, index)
	require.Error(t, err)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestZRemStaleEvictsOldEntriesOnly(t *testing.T) {
	ctx := context.Background()
	index := "test:ttl-index"
	now := time.Now()

	require.NoError(t, testDir.ZAdd(ctx, index, "stale", float64(now.Add(-time.Hour).Unix())))
	require.NoError(t, testDir.ZAdd(ctx, index, "fresh", float64(now.Unix())))

	require.NoError(t, testDir.ZRemStale(ctx, index, now, time.Minute))

	_, err := testDir.ZPopMin(ctx, index)
	require.NoError(t, err)
	_, err = testDir.ZPopMin(ctx, index)
	require.Error(t, err)
}

func TestHashRoundTrip(t *testing.T) {
	ctx := context.Background()
	key := "test:backfill"
	require.NoError(t, testDir.HSet(ctx, key, "session-a", 2))

	m, err := testDir.HGetAll(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "2", m["session-a"])

	require.NoError(t, testDir.HDel(ctx, key, "session-a"))
	m, err = testDir.HGetAll(ctx, key)
	require.NoError(t, err)
	require.NotContains(t, m, "session-a")
}
