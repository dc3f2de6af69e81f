package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const assetColumns = "id, name, original_name, path, duration_seconds, size_bytes, ingested, quality, parent_id, created_at"

const jobColumns = "id, external_id, asset_id, kind, status, params_json, result_json, created_at, updated_at, completed_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(row scanner) (*Asset, error) {
	var (
		asset      Asset
		duration   sql.NullFloat64
		size       sql.NullInt64
		ingested   int64
		quality    sql.NullString
		parentID   sql.NullInt64
		createdRaw sql.NullString
	)
	if err := row.Scan(
		&asset.ID,
		&asset.Name,
		&asset.OriginalName,
		&asset.Path,
		&duration,
		&size,
		&ingested,
		&quality,
		&parentID,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	asset.DurationSeconds = duration.Float64
	asset.SizeBytes = size.Int64
	asset.Ingested = ingested != 0
	asset.Quality = quality.String
	if asset.Quality == "" {
		asset.Quality = QualityOriginal
	}
	if parentID.Valid {
		id := parentID.Int64
		asset.ParentID = &id
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		asset.CreatedAt = created
	}
	return &asset, nil
}

func scanJob(row scanner) (*Job, error) {
	var (
		job          Job
		kind         string
		status       string
		paramsRaw    sql.NullString
		resultRaw    sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.ExternalID,
		&job.AssetID,
		&kind,
		&status,
		&paramsRaw,
		&resultRaw,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	job.Kind = Kind(kind)
	job.Status = Status(status)

	params, err := DecodeParams(job.Kind, []byte(paramsRaw.String))
	if err != nil {
		return nil, err
	}
	job.Params = params
	if err := decodeInto([]byte(resultRaw.String), &job.Result); err != nil {
		return nil, err
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return &job, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

// timestampLayout is fixed width so stored timestamps compare correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
