// Package directory wraps a Redis client behind the narrow primitives the
// rest of the fleet control plane is allowed to use: TTL'd key/value
// storage, pipelined batches, scored-set leases, hash maps, and pub/sub.
// No other package talks to Redis directly — they all go through here or
// through the fleet registry built on top of it.
package directory

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mooncorn/fleetmatch/internal/errs"
)

// Directory is the content-addressed store described in spec.md §4.A.
type Directory struct {
	rdb *redis.Client
}

// New connects to the Redis instance at addr (a redis:// URL).
func New(addr string) (*Directory, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, errs.New(errs.KindBackendUnavailable, "directory.New: parse redis url", err)
	}
	return &Directory{rdb: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an already-constructed client, used by tests that spin
// up a containerized Redis via testcontainers.
func NewFromClient(rdb *redis.Client) *Directory {
	return &Directory{rdb: rdb}
}

// Ping verifies connectivity, used by each binary's health check.
func (d *Directory) Ping(ctx context.Context) error {
	if err := d.rdb.Ping(ctx).Err(); err != nil {
		return errs.New(errs.KindBackendUnavailable, "directory.Ping", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (d *Directory) Close() error {
	return d.rdb.Close()
}

// SetWithTTL overwrites key with value, expiring it at ttl from now.
func (d *Directory) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := d.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return errs.New(errs.KindBackendUnavailable, "directory.SetWithTTL", err)
	}
	return nil
}

// Get returns the raw value for key, or ErrNotFound if absent/expired.
func (d *Directory) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := d.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, errs.New(errs.KindNotFound, "directory.Get", errs.ErrNotFound)
	}
	if err != nil {
		return nil, errs.New(errs.KindBackendUnavailable, "directory.Get", err)
	}
	return v, nil
}

// Pipeline executes fn against a batched pipeline, applying every queued op
// on a single connection in declared order and sending it as one round
// trip. Not atomic — a partial failure can leave some
// of the queued ops applied and others not; callers rely on the next
// heartbeat to reconcile, per spec.md §5.
func (d *Directory) Pipeline(ctx context.Context, fn func(redis.Pipeliner)) error {
	pipe := d.rdb.Pipeline()
	fn(pipe)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return errs.New(errs.KindBackendUnavailable, "directory.Pipeline", err)
	}
	return nil
}

// ZAdd adds member to index with the given score (unix seconds).
func (d *Directory) ZAdd(ctx context.Context, index, member string, score float64) error {
	if err := d.rdb.ZAdd(ctx, index, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return errs.New(errs.KindBackendUnavailable, "directory.ZAdd", err)
	}
	return nil
}

// ZRemStale evicts every member scored at or below now-ttl, pruning leases that
// were never refreshed by a heartbeat.
func (d *Directory) ZRemStale(ctx context.Context, index string, now time.Time, ttl time.Duration) error {
	maxScore := now.Add(-ttl).Unix()
	if err := d.rdb.ZRemRangeByScore(ctx, index, "-inf", strconv.FormatInt(maxScore, 10)).Err(); err != nil {
		return errs.New(errs.KindBackendUnavailable, "directory.ZRemStale", err)
	}
	return nil
}

// ZPopMin atomically pops and returns the lowest-score member of index, or
// ErrNotFound if the index is empty. This is the sole serialization point
// for take_waiting_server: a server is offered to at most one caller.
func (d *Directory) ZPopMin(ctx context.Context, index string) (string, error) {
	res, err := d.rdb.ZPopMin(ctx, index, 1).Result()
	if err != nil {
		return "", errs.New(errs.KindBackendUnavailable, "directory.ZPopMin", err)
	}
	if len(res) == 0 {
		return "", errs.New(errs.KindNotFound, "directory.ZPopMin", errs.ErrNotFound)
	}
	member, _ := res[0].Member.(string)
	return member, nil
}

// ZRem removes member from index unconditionally (used to tear down the
// waiting-servers entry when a server stops reporting WaitingForPlacement).
func (d *Directory) ZRem(ctx context.Context, index, member string) error {
	if err := d.rdb.ZRem(ctx, index, member).Err(); err != nil {
		return errs.New(errs.KindBackendUnavailable, "directory.ZRem", err)
	}
	return nil
}

// ZCard returns the number of members currently in index, used by the
// admin status surface to report pool sizes without popping anything.
func (d *Directory) ZCard(ctx context.Context, index string) (int64, error) {
	n, err := d.rdb.ZCard(ctx, index).Result()
	if err != nil {
		return 0, errs.New(errs.KindBackendUnavailable, "directory.ZCard", err)
	}
	return n, nil
}

// HSet sets field to value within the backfill hash.
func (d *Directory) HSet(ctx context.Context, key, field string, value int) error {
	if err := d.rdb.HSet(ctx, key, field, value).Err(); err != nil {
		return errs.New(errs.KindBackendUnavailable, "directory.HSet", err)
	}
	return nil
}

// HDel removes field from the backfill hash.
func (d *Directory) HDel(ctx context.Context, key, field string) error {
	if err := d.rdb.HDel(ctx, key, field).Err(); err != nil {
		return errs.New(errs.KindBackendUnavailable, "directory.HDel", err)
	}
	return nil
}

// HGetAll returns the entire backfill map (session_id -> open_slot_count).
func (d *Directory) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := d.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errs.New(errs.KindBackendUnavailable, "directory.HGetAll", err)
	}
	return m, nil
}

// Publish writes payload to channel for every subscribed notification-bus
// instance to see.
func (d *Directory) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := d.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return errs.New(errs.KindBackendUnavailable, "directory.Publish", err)
	}
	return nil
}

// Subscribe returns a subscription to channel; its Channel() method yields
// the published messages. Callers must Close() the returned subscription
// when done.
func (d *Directory) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return d.rdb.Subscribe(ctx, channel)
}
