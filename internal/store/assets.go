package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediaforge/internal/services"
)

// CreateAsset inserts an asset and returns it with its assigned id. A named
// parent must already exist; ids are assigned after the parent check, so a
// child id is always greater than its parent's.
func (s *Session) CreateAsset(ctx context.Context, in NewAsset) (*Asset, error) {
	if strings.TrimSpace(in.Path) == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create asset", "path is required", nil)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create asset", "name is required", nil)
	}
	originalName := in.OriginalName
	if strings.TrimSpace(originalName) == "" {
		originalName = in.Name
	}
	quality := strings.TrimSpace(in.Quality)
	if quality == "" {
		quality = QualityOriginal
	}

	ctx = ensureContext(ctx)
	var created *Asset
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if in.ParentID != nil {
			exists, err := assetExists(ctx, tx, *in.ParentID)
			if err != nil {
				return err
			}
			if !exists {
				return services.Wrap(services.ErrNotFound, "store", "create asset",
					fmt.Sprintf("parent asset %d", *in.ParentID), ErrReference)
			}
		}

		var duration, size any
		if in.Ingested {
			duration = in.DurationSeconds
			size = in.SizeBytes
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO assets (name, original_name, path, duration_seconds, size_bytes, ingested, quality, parent_id, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.Name,
			originalName,
			in.Path,
			duration,
			size,
			boolToInt(in.Ingested),
			quality,
			nullableInt64(in.ParentID),
			formatTime(time.Now()),
		)
		if err != nil {
			return fmt.Errorf("insert asset: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		created, err = getAsset(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, persistenceError("create asset", err)
	}
	return created, nil
}

// GetAsset fetches an asset by id.
func (s *Session) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	asset, err := getAsset(ensureContext(ctx), q, id)
	if err != nil {
		return nil, persistenceError("get asset", err)
	}
	return asset, nil
}

// ListAssets returns assets in insertion order. A limit of zero or less
// returns every asset after offset.
func (s *Session) ListAssets(ctx context.Context, offset, limit int) ([]*Asset, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.QueryContext(ensureContext(ctx),
		`SELECT `+assetColumns+` FROM assets ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, persistenceError("list assets", err)
	}
	return collectAssets(rows)
}

// ListChildren returns the assets derived directly from id, oldest first.
func (s *Session) ListChildren(ctx context.Context, id int64) ([]*Asset, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ensureContext(ctx),
		`SELECT `+assetColumns+` FROM assets WHERE parent_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, persistenceError("list children", err)
	}
	return collectAssets(rows)
}

// UpdateMetadata records probed duration and size and marks the asset
// ingested. Calling it on an ingested asset overwrites the previous values.
// Identity, lineage, and storage fields are never touched.
func (s *Session) UpdateMetadata(ctx context.Context, id int64, durationSeconds float64, sizeBytes int64) (*Asset, error) {
	ctx = ensureContext(ctx)
	var updated *Asset
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE assets SET duration_seconds = ?, size_bytes = ?, ingested = 1 WHERE id = ?`,
			durationSeconds, sizeBytes, id)
		if err != nil {
			return fmt.Errorf("update metadata: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return assetNotFound(id)
		}
		updated, err = getAsset(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, persistenceError("update metadata", err)
	}
	return updated, nil
}

// CountAssets returns the number of stored assets.
func (s *Session) CountAssets(ctx context.Context) (int64, error) {
	q, err := s.reader()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := q.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM assets`).Scan(&count); err != nil {
		return 0, persistenceError("count assets", err)
	}
	return count, nil
}

func getAsset(ctx context.Context, q queryer, id int64) (*Asset, error) {
	row := q.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, assetNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	return asset, nil
}

func assetExists(ctx context.Context, q queryer, id int64) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM assets WHERE id = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("check asset: %w", err)
	}
	return count > 0, nil
}

func collectAssets(rows *sql.Rows) ([]*Asset, error) {
	defer rows.Close()
	var assets []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, persistenceError("scan asset", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterate assets", err)
	}
	return assets, nil
}

func assetNotFound(id int64) error {
	return services.Wrap(services.ErrNotFound, "store", "asset", fmt.Sprintf("asset %d", id), nil)
}

// persistenceError tags storage failures while leaving domain errors as-is.
func persistenceError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrNotFound) ||
		errors.Is(err, services.ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrSessionReleased) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrPersistence, "store", operation, "", err)
}
