package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"mediaforge/internal/api"
	"mediaforge/internal/config"
	"mediaforge/internal/dispatch"
	"mediaforge/internal/logging"
	"mediaforge/internal/store"
	"mediaforge/internal/submit"
	"mediaforge/internal/testsupport"
	"mediaforge/internal/worker"
)

type idleExecutor struct{}

func (idleExecutor) Execute(context.Context, dispatch.WorkUnit) error { return nil }

type apiFixture struct {
	cfg    *config.Config
	store  *store.Store
	server *httptest.Server
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	queue := dispatch.NewSQLite(st)
	logger := logging.NewNop()
	pool := worker.NewPool(cfg, queue, idleExecutor{}, logger)
	d, err := New(cfg, st, queue, pool, submit.NewService(cfg, st, queue, logger), logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	server := httptest.NewServer(d.api.routes())
	t.Cleanup(server.Close)
	return apiFixture{cfg: cfg, store: st, server: server}
}

func (f apiFixture) request(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("%s %s: missing request id header", method, path)
	}
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return out
}

func TestSubmitAndFetchJob(t *testing.T) {
	f := newAPIFixture(t)
	asset := testsupport.MustCreateAsset(t, f.cfg, f.store, "clip.mp4", 128)

	code, body := f.request(t, http.MethodPost, "/api/jobs", api.SubmitRequest{
		Kind:    "trim",
		AssetID: asset.ID,
		Params:  json.RawMessage(`{"start_time": 1, "end_time": 4}`),
	})
	if code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", code, body)
	}
	submitted := decode[api.SubmitResponse](t, body)
	if submitted.Job.JobID == "" || submitted.Job.AssetID != asset.ID {
		t.Fatalf("unexpected submission %+v", submitted.Job)
	}

	code, body = f.request(t, http.MethodGet, "/api/jobs/"+submitted.Job.JobID, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	job := decode[api.JobResponse](t, body)
	if job.Job.Status != store.StatusPending || job.Job.Kind != store.KindTrim {
		t.Fatalf("unexpected job view %+v", job.Job)
	}

	code, body = f.request(t, http.MethodGet, "/api/jobs?status=pending&asset_id="+strconv.FormatInt(asset.ID, 10), nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	if list := decode[api.JobListResponse](t, body); len(list.Jobs) != 1 {
		t.Fatalf("expected one listed job, got %d", len(list.Jobs))
	}
}

func TestSubmitErrorsMapToStatusCodes(t *testing.T) {
	f := newAPIFixture(t)
	asset := testsupport.MustCreateAsset(t, f.cfg, f.store, "clip.mp4", 128)

	tests := []struct {
		name string
		req  api.SubmitRequest
		code int
	}{
		{"unsupported quality", api.SubmitRequest{Kind: "quality", AssetID: asset.ID, Params: json.RawMessage(`{"quality":"4K"}`)}, http.StatusBadRequest},
		{"unknown kind", api.SubmitRequest{Kind: "stretch", AssetID: asset.ID}, http.StatusBadRequest},
		{"ingest is upload only", api.SubmitRequest{Kind: "ingest", AssetID: asset.ID}, http.StatusBadRequest},
		{"malformed params", api.SubmitRequest{Kind: "trim", AssetID: asset.ID, Params: json.RawMessage(`{"start_time":"soon"}`)}, http.StatusBadRequest},
		{"unknown asset", api.SubmitRequest{Kind: "trim", AssetID: asset.ID + 100, Params: json.RawMessage(`{"start_time":0,"end_time":1}`)}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.request(t, http.MethodPost, "/api/jobs", tt.req)
			if code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, code, body)
			}
			if resp := decode[api.ErrorResponse](t, body); resp.Error == "" {
				t.Fatal("expected error message in body")
			}
		})
	}

	code, _ := f.request(t, http.MethodGet, "/api/jobs/does-not-exist", nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", code)
	}
	code, _ = f.request(t, http.MethodGet, "/api/jobs?status=stuck", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status filter, got %d", code)
	}
}

func TestAssetEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	asset := testsupport.MustCreateAsset(t, f.cfg, f.store, "clip.mp4", 128)

	code, body := f.request(t, http.MethodGet, "/api/assets", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	if list := decode[api.AssetListResponse](t, body); len(list.Assets) != 1 {
		t.Fatalf("expected one asset, got %d", len(list.Assets))
	}

	code, body = f.request(t, http.MethodGet, "/api/assets/"+strconv.FormatInt(asset.ID, 10), nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	detail := decode[api.AssetResponse](t, body)
	if detail.Asset.ID != asset.ID || len(detail.Children) != 0 {
		t.Fatalf("unexpected asset detail %+v", detail)
	}

	if code, _ = f.request(t, http.MethodGet, "/api/assets/abc", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", code)
	}
	if code, _ = f.request(t, http.MethodGet, "/api/assets/9999", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown asset, got %d", code)
	}
	if code, _ = f.request(t, http.MethodGet, "/api/assets?limit=-1", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", code)
	}
}

func TestStatusAndMetricsEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	code, body := f.request(t, http.MethodGet, "/api/status", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	status := decode[api.DaemonStatus](t, body)
	if status.Running || status.Queue.Backend != config.DispatchSQLite {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Jobs) != len(store.AllStatuses()) {
		t.Fatalf("expected a count per status, got %+v", status.Jobs)
	}

	code, body = f.request(t, http.MethodGet, "/metrics", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", code)
	}
	if !strings.Contains(string(body), "mediaforge_api_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestClientRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	asset := testsupport.MustCreateAsset(t, f.cfg, f.store, "clip.mp4", 128)
	client := api.NewClient(f.server.URL)
	ctx := context.Background()

	resp, err := client.Submit(ctx, api.SubmitRequest{
		Kind:    "watermark",
		AssetID: asset.ID,
		Params:  json.RawMessage(`{"watermark_path":"` + asset.Path + `","position":"top-left"}`),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := client.Job(ctx, resp.Job.JobID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if job.Job.Kind != store.KindWatermark {
		t.Fatalf("unexpected job kind %q", job.Job.Kind)
	}
	if _, err := client.Job(ctx, "missing"); err == nil {
		t.Fatal("expected not found error from client")
	}
}
