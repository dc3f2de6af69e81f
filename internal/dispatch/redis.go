package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mediaforge/internal/config"
	"mediaforge/internal/services"
)

// envelope is the list element stored in Redis. Token identifies one
// delivery; Attempt counts claims including the current one.
type envelope struct {
	Token   string   `json:"token"`
	Attempt int      `json:"attempt"`
	Unit    WorkUnit `json:"unit"`
}

// claimScript moves the oldest pending element to the processing list and
// records its lease in the same step, so Reclaim never sees a claim without
// one. Every key it touches is passed in KEYS.
var claimScript = redis.NewScript(`
local raw = redis.call('RPOPLPUSH', KEYS[1], KEYS[2])
if not raw then
  return false
end
local env = cjson.decode(raw)
redis.call('HSET', KEYS[3], env.token, ARGV[1])
return raw
`)

// RedisQueue is a reliable-list queue: pending elements are pushed on the
// left and claimed from the right into a processing list. Leases live in one
// hash keyed by delivery token. All keys share the {name} hash tag so they
// land in one cluster slot.
type RedisQueue struct {
	client *redis.Client
	name   string
	owned  bool
}

// NewRedis wraps an existing client. Close does not close the client.
func NewRedis(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name}
}

// DialRedis connects to url and verifies the server responds.
func DialRedis(ctx context.Context, url, name string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "dispatch", "dial redis", "parse redis url", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, services.Wrap(services.ErrPersistence, "dispatch", "dial redis", "ping "+opts.Addr, err)
	}
	return &RedisQueue{client: client, name: name, owned: true}, nil
}

// Backend names the backend for logs and status output.
func (q *RedisQueue) Backend() string { return config.DispatchRedis }

func (q *RedisQueue) pendingKey() string    { return "{" + q.name + "}:pending" }
func (q *RedisQueue) processingKey() string { return "{" + q.name + "}:processing" }
func (q *RedisQueue) leasesKey() string     { return "{" + q.name + "}:leases" }

// Enqueue pushes unit onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, unit WorkUnit) error {
	return q.push(ctx, envelope{Token: uuid.NewString(), Unit: unit})
}

func (q *RedisQueue) push(ctx context.Context, env envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return services.Wrap(services.ErrProcessing, "dispatch", "enqueue", "encode work unit", err)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), raw).Err(); err != nil {
		return services.Wrap(services.ErrPersistence, "dispatch", "enqueue", "push work unit", err)
	}
	return nil
}

// Claim moves the oldest pending unit into processing and leases it.
func (q *RedisQueue) Claim(ctx context.Context, owner string) (*Delivery, error) {
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	raw, err := claimScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.processingKey(), q.leasesKey()},
		now).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "dispatch", "claim", "claim work unit", err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		_ = q.ack(ctx, raw, "")
		return nil, services.Wrap(services.ErrProcessing, "dispatch", "claim", "decode work unit", err)
	}
	ack := func(ctx context.Context) error { return q.ack(ctx, raw, env.Token) }
	heartbeat := func(ctx context.Context) error {
		stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
		if err := q.client.HSet(ctx, q.leasesKey(), env.Token, stamp).Err(); err != nil {
			return services.Wrap(services.ErrPersistence, "dispatch", "heartbeat", "refresh lease", err)
		}
		return nil
	}
	return NewDelivery(env.Unit, env.Attempt+1, ack, heartbeat), nil
}

// ack removes raw from processing and drops its lease in one transaction.
func (q *RedisQueue) ack(ctx context.Context, raw, token string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(), 1, raw)
		if token != "" {
			pipe.HDel(ctx, q.leasesKey(), token)
		}
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrPersistence, "dispatch", "ack", "remove work unit", err)
	}
	return nil
}

// Reclaim returns processing units whose lease is older than cutoff, or
// missing, to the pending list.
func (q *RedisQueue) Reclaim(ctx context.Context, cutoff time.Time) (int64, error) {
	items, err := q.client.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return 0, services.Wrap(services.ErrPersistence, "dispatch", "reclaim", "list processing", err)
	}
	var reclaimed int64
	for _, raw := range items {
		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			_ = q.ack(ctx, raw, "")
			continue
		}
		if !q.leaseExpired(ctx, env.Token, cutoff) {
			continue
		}
		removed, err := q.client.LRem(ctx, q.processingKey(), 1, raw).Result()
		if err != nil {
			return reclaimed, services.Wrap(services.ErrPersistence, "dispatch", "reclaim", "remove stale unit", err)
		}
		if removed == 0 {
			// Acked between LRANGE and LREM.
			continue
		}
		_ = q.client.HDel(ctx, q.leasesKey(), env.Token).Err()
		env.Attempt++
		env.Token = uuid.NewString()
		if err := q.push(ctx, env); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	return reclaimed, nil
}

func (q *RedisQueue) leaseExpired(ctx context.Context, token string, cutoff time.Time) bool {
	value, err := q.client.HGet(ctx, q.leasesKey(), token).Result()
	if err != nil {
		return errors.Is(err, redis.Nil)
	}
	nanos, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return true
	}
	return time.Unix(0, nanos).Before(cutoff)
}

// Stats reports pending and processing list lengths.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pending, err := q.client.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return Stats{}, services.Wrap(services.ErrPersistence, "dispatch", "stats", "pending length", err)
	}
	processing, err := q.client.LLen(ctx, q.processingKey()).Result()
	if err != nil {
		return Stats{}, services.Wrap(services.ErrPersistence, "dispatch", "stats", "processing length", err)
	}
	return Stats{Queued: int(pending), Claimed: int(processing)}, nil
}

// Close releases the client when DialRedis created it.
func (q *RedisQueue) Close() error {
	if q.owned {
		return q.client.Close()
	}
	return nil
}
