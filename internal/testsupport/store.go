package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"mediaforge/internal/config"
	"mediaforge/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// MustCreateAsset writes a media file of size bytes under the config media
// directory and records it as an ingested original asset.
func MustCreateAsset(t testing.TB, cfg *config.Config, st *store.Store, name string, size int64) *store.Asset {
	t.Helper()

	path := filepath.Join(cfg.Paths.MediaDir, name)
	WriteFile(t, path, size)
	asset, err := st.CreateAsset(context.Background(), store.NewAsset{
		Name:            name,
		OriginalName:    name,
		Path:            path,
		DurationSeconds: 60,
		SizeBytes:       size,
		Ingested:        true,
	})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	return asset
}
