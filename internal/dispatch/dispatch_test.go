package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mediaforge/internal/config"
	"mediaforge/internal/dispatch"
	"mediaforge/internal/services"
	"mediaforge/internal/store"
	"mediaforge/internal/testsupport"
)

type fixture struct {
	queue dispatch.Queue
	store *store.Store
	cfg   *config.Config
}

func backends(t *testing.T) map[string]func(t *testing.T) fixture {
	t.Helper()
	return map[string]func(t *testing.T) fixture{
		config.DispatchSQLite: func(t *testing.T) fixture {
			cfg := testsupport.NewConfig(t)
			st := testsupport.MustOpenStore(t, cfg)
			return fixture{queue: dispatch.NewSQLite(st), store: st, cfg: cfg}
		},
		config.DispatchRedis: func(t *testing.T) fixture {
			cfg := testsupport.NewConfig(t)
			st := testsupport.MustOpenStore(t, cfg)
			server := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: server.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return fixture{queue: dispatch.NewRedis(client, "test"), store: st, cfg: cfg}
		},
	}
}

// newUnit persists a trim job so the SQLite backend's foreign key holds.
func newUnit(t *testing.T, f fixture) dispatch.WorkUnit {
	t.Helper()
	ctx := context.Background()
	asset := testsupport.MustCreateAsset(t, f.cfg, f.store, "clip.mp4", 128)
	job, err := f.store.CreateJob(ctx, "", asset.ID, store.KindTrim, store.TrimParams{Start: 1, End: 4})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	unit, err := dispatch.NewWorkUnit(job, asset, "")
	if err != nil {
		t.Fatalf("NewWorkUnit: %v", err)
	}
	return unit
}

func TestEnqueueClaimAck(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := open(t)
			if f.queue.Backend() != name {
				t.Fatalf("backend = %q", f.queue.Backend())
			}
			unit := newUnit(t, f)
			if err := f.queue.Enqueue(ctx, unit); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			stats, err := f.queue.Stats(ctx)
			if err != nil || stats.Queued != 1 || stats.Claimed != 0 {
				t.Fatalf("stats after enqueue = %+v, %v", stats, err)
			}

			delivery, err := f.queue.Claim(ctx, "worker-1")
			if err != nil || delivery == nil {
				t.Fatalf("Claim: %v %v", delivery, err)
			}
			if delivery.Attempt != 1 {
				t.Fatalf("expected first attempt, got %d", delivery.Attempt)
			}
			if delivery.Unit.JobID != unit.JobID || delivery.Unit.InputPath != unit.InputPath {
				t.Fatalf("unexpected unit %+v", delivery.Unit)
			}
			params, err := delivery.Unit.DecodeParams()
			if err != nil {
				t.Fatalf("DecodeParams: %v", err)
			}
			if trim, ok := params.(store.TrimParams); !ok || trim.Start != 1 || trim.End != 4 {
				t.Fatalf("unexpected params %#v", params)
			}
			if err := delivery.Heartbeat(ctx); err != nil {
				t.Fatalf("Heartbeat: %v", err)
			}
			if stats, _ := f.queue.Stats(ctx); stats.Claimed != 1 || stats.Queued != 0 {
				t.Fatalf("stats after claim = %+v", stats)
			}

			if err := delivery.Ack(ctx); err != nil {
				t.Fatalf("Ack: %v", err)
			}
			if stats, _ := f.queue.Stats(ctx); stats.Claimed != 0 || stats.Queued != 0 {
				t.Fatalf("stats after ack = %+v", stats)
			}
			empty, err := f.queue.Claim(ctx, "worker-1")
			if err != nil || empty != nil {
				t.Fatalf("expected empty queue, got %v %v", empty, err)
			}
		})
	}
}

func TestClaimOrderIsFIFO(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := open(t)
			first := newUnit(t, f)
			second := newUnit(t, f)
			for _, unit := range []dispatch.WorkUnit{first, second} {
				if err := f.queue.Enqueue(ctx, unit); err != nil {
					t.Fatalf("Enqueue: %v", err)
				}
			}
			for _, want := range []int64{first.JobID, second.JobID} {
				delivery, err := f.queue.Claim(ctx, "w")
				if err != nil || delivery == nil {
					t.Fatalf("Claim: %v", err)
				}
				if delivery.Unit.JobID != want {
					t.Fatalf("claimed job %d, want %d", delivery.Unit.JobID, want)
				}
			}
		})
	}
}

func TestReclaimRequeuesStaleClaims(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := open(t)
			unit := newUnit(t, f)
			if err := f.queue.Enqueue(ctx, unit); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			if _, err := f.queue.Claim(ctx, "crashed"); err != nil {
				t.Fatalf("Claim: %v", err)
			}

			n, err := f.queue.Reclaim(ctx, time.Now().Add(-time.Hour))
			if err != nil || n != 0 {
				t.Fatalf("fresh claim reclaimed: %d %v", n, err)
			}
			n, err = f.queue.Reclaim(ctx, time.Now().Add(time.Second))
			if err != nil || n != 1 {
				t.Fatalf("expected one reclaimed unit, got %d %v", n, err)
			}

			delivery, err := f.queue.Claim(ctx, "survivor")
			if err != nil || delivery == nil {
				t.Fatalf("reclaimed unit not redelivered: %v", err)
			}
			if delivery.Attempt != 2 {
				t.Fatalf("expected second attempt, got %d", delivery.Attempt)
			}
			if delivery.Unit.JobID != unit.JobID {
				t.Fatalf("unexpected job %d", delivery.Unit.JobID)
			}
		})
	}
}

func TestRedisClaimDropsUndecodableUnit(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	queue := dispatch.NewRedis(client, "bad")

	if _, err := server.Lpush("{bad}:pending", `{"token":"t1","unit":{"job_id":"oops"}}`); err != nil {
		t.Fatalf("Lpush: %v", err)
	}
	_, err := queue.Claim(context.Background(), "w")
	if !errors.Is(err, services.ErrProcessing) {
		t.Fatalf("expected processing error, got %v", err)
	}
	if stats, _ := queue.Stats(context.Background()); stats.Queued != 0 || stats.Claimed != 0 {
		t.Fatalf("expected poison unit dropped, stats %+v", stats)
	}
}

func TestRedisKeysShareOneSlot(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	queue := dispatch.NewRedis(client, "jobs")
	ctx := context.Background()

	unit := dispatch.WorkUnit{JobID: 1, Kind: store.KindIngest, AssetID: 1, Params: json.RawMessage(`{}`)}
	for i := 0; i < 2; i++ {
		if err := queue.Enqueue(ctx, unit); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	first, err := queue.Claim(ctx, "w1")
	if err != nil || first == nil {
		t.Fatalf("Claim: %v %v", first, err)
	}
	if _, err := queue.Claim(ctx, "w2"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	for _, key := range server.Keys() {
		if len(key) < len("{jobs}:") || key[:len("{jobs}:")] != "{jobs}:" {
			t.Fatalf("key %q is outside the {jobs} hash tag", key)
		}
	}
	leases, err := server.HKeys("{jobs}:leases")
	if err != nil || len(leases) != 2 {
		t.Fatalf("expected a lease per claim, got %v %v", leases, err)
	}

	if err := first.Ack(ctx); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	leases, _ = server.HKeys("{jobs}:leases")
	if len(leases) != 1 {
		t.Fatalf("expected ack to drop its lease, got %v", leases)
	}
	if stats, _ := queue.Stats(ctx); stats.Claimed != 1 || stats.Queued != 0 {
		t.Fatalf("unexpected stats after ack: %+v", stats)
	}
}

func TestDialRedisRejectsBadURL(t *testing.T) {
	_, err := dispatch.DialRedis(context.Background(), "not-a-url", "q")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	server := miniredis.RunT(t)

	queue, err := dispatch.Open(context.Background(), cfg, st)
	if err != nil || queue.Backend() != config.DispatchSQLite {
		t.Fatalf("default backend: %v %v", queue, err)
	}

	cfg.Dispatch.Backend = config.DispatchRedis
	cfg.Dispatch.RedisURL = "redis://" + server.Addr() + "/0"
	queue, err = dispatch.Open(context.Background(), cfg, st)
	if err != nil {
		t.Fatalf("Open redis: %v", err)
	}
	t.Cleanup(func() { _ = queue.Close() })
	if queue.Backend() != config.DispatchRedis {
		t.Fatalf("backend = %q", queue.Backend())
	}

	cfg.Dispatch.Backend = "kafka"
	if _, err := dispatch.Open(context.Background(), cfg, st); err == nil {
		t.Fatal("expected unknown backend error")
	}
}

func TestWorkUnitJSONFieldNames(t *testing.T) {
	unit := dispatch.WorkUnit{JobID: 7, Kind: store.KindQuality, AssetID: 3, InputPath: "/m/a.mp4", Params: json.RawMessage(`{"quality":"720p"}`)}
	raw, err := json.Marshal(unit)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"job_id", "kind", "asset_id", "input_path", "params"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("missing %q in %s", key, raw)
		}
	}
	if _, ok := fields["output_path_hint"]; ok {
		t.Fatalf("empty hint should be omitted: %s", raw)
	}
}
