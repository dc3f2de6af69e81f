package submit

import (
	"context"
	"fmt"
	"log/slog"

	"mediaforge/internal/command"
	"mediaforge/internal/config"
	"mediaforge/internal/dispatch"
	"mediaforge/internal/logging"
	"mediaforge/internal/metrics"
	"mediaforge/internal/services"
	"mediaforge/internal/store"
)

// Service validates, records, and dispatches jobs.
type Service struct {
	cfg        *config.Config
	store      *store.Store
	dispatcher dispatch.Dispatcher
	logger     *slog.Logger
}

// NewService constructs a submission service.
func NewService(cfg *config.Config, st *store.Store, dispatcher dispatch.Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		store:      st,
		dispatcher: dispatcher,
		logger:     logging.NewComponentLogger(logger, "submit"),
	}
}

// Submission identifies an accepted job.
type Submission struct {
	JobID   string     `json:"job_id"`
	AssetID int64      `json:"asset_id"`
	Kind    store.Kind `json:"kind"`
}

// Submit validates params for kind against assetID, creates a pending job,
// and enqueues it.
func (s *Service) Submit(ctx context.Context, kind store.Kind, assetID int64, params store.Params) (Submission, error) {
	if !kind.IsValid() {
		return Submission{}, services.Wrap(services.ErrValidation, "submit", "submit", fmt.Sprintf("unknown job kind %q", kind), nil)
	}
	if params == nil {
		params, _ = store.ParamsForKind(kind)
	}
	params, err := s.normalize(kind, params)
	if err != nil {
		return Submission{}, err
	}
	asset, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		return Submission{}, err
	}
	return s.createAndDispatch(ctx, asset, kind, params)
}

// Trim keeps [start, end) seconds of the asset.
func (s *Service) Trim(ctx context.Context, assetID int64, start, end float64) (Submission, error) {
	return s.Submit(ctx, store.KindTrim, assetID, store.TrimParams{Start: start, End: end})
}

// Quality re-encodes the asset to a named tier.
func (s *Service) Quality(ctx context.Context, assetID int64, tier string) (Submission, error) {
	return s.Submit(ctx, store.KindQuality, assetID, store.QualityParams{Quality: tier})
}

// OverlayRequest describes an overlay source and placement. Source is a file
// path or the name of an entry in the overlay directory.
type OverlayRequest struct {
	Source   string
	Position string
	Start    float64
	End      *float64
}

// BRollOverlay composites a video clip over the asset.
func (s *Service) BRollOverlay(ctx context.Context, assetID int64, req OverlayRequest) (Submission, error) {
	return s.Submit(ctx, store.KindBRollOverlay, assetID, overlayParams(req))
}

// ImageOverlay composites a still image over the asset.
func (s *Service) ImageOverlay(ctx context.Context, assetID int64, req OverlayRequest) (Submission, error) {
	return s.Submit(ctx, store.KindImageOverlay, assetID, overlayParams(req))
}

// Watermark stamps an image over the whole asset.
func (s *Service) Watermark(ctx context.Context, assetID int64, source, position string) (Submission, error) {
	return s.Submit(ctx, store.KindWatermark, assetID, store.WatermarkParams{WatermarkPath: source, Position: position})
}

func overlayParams(req OverlayRequest) store.OverlayParams {
	return store.OverlayParams{OverlayPath: req.Source, Position: req.Position, Start: req.Start, End: req.End}
}

// normalize resolves sources and canonicalizes names, then proves the
// transform builds.
func (s *Service) normalize(kind store.Kind, params store.Params) (store.Params, error) {
	var op command.Operation
	switch p := params.(type) {
	case store.IngestParams:
		return p, nil
	case store.TrimParams:
		op = command.Trim{Start: p.Start, End: p.End}
	case store.QualityParams:
		tier, err := command.ParseQuality(p.Quality)
		if err != nil {
			return nil, err
		}
		p.Quality = string(tier)
		params, op = p, command.Quality{Tier: tier}
	case store.OverlayParams:
		position, err := command.ParsePosition(p.Position)
		if err != nil {
			return nil, err
		}
		source, err := s.resolveOverlay(kind, p.OverlayPath)
		if err != nil {
			return nil, err
		}
		p.Position, p.OverlayPath = string(position), source
		params = p
		op = command.Overlay{Source: source, Position: position, Timing: command.Timing{Start: p.Start, End: p.End}}
	case store.WatermarkParams:
		position, err := command.ParsePosition(p.Position)
		if err != nil {
			return nil, err
		}
		source, err := s.resolveOverlay(kind, p.WatermarkPath)
		if err != nil {
			return nil, err
		}
		p.Position, p.WatermarkPath = string(position), source
		params = p
		op = command.Watermark{Source: source, Position: position}
	default:
		return nil, services.Wrap(services.ErrValidation, "submit", "validate", fmt.Sprintf("unsupported params %T", params), nil)
	}
	if _, err := command.Build(op); err != nil {
		return nil, err
	}
	return params, nil
}

func (s *Service) createAndDispatch(ctx context.Context, asset *store.Asset, kind store.Kind, params store.Params) (Submission, error) {
	job, err := s.store.CreateJob(ctx, "", asset.ID, kind, params)
	if err != nil {
		return Submission{}, err
	}
	logger := logging.WithContext(services.WithKind(services.WithJobID(ctx, job.ExternalID), string(kind)), s.logger)

	unit, err := dispatch.NewWorkUnit(job, asset, "")
	if err == nil {
		err = s.dispatcher.Enqueue(ctx, unit)
	}
	if err != nil {
		// A job that never reached the queue would stay pending forever, so the
		// submission is undone and the caller sees the error instead.
		if discardErr := s.store.DiscardPendingJob(ctx, job.ID); discardErr != nil {
			logging.WarnWithContext(logger, "failed to discard undispatched job", "job_discard_failed",
				logging.Error(discardErr),
				logging.String(logging.FieldErrorHint, "the job stays pending; resubmit it"),
			)
		}
		return Submission{}, services.Wrap(services.ErrPersistence, "submit", "dispatch", "enqueue work unit", err)
	}

	metrics.RecordSubmission(string(kind))
	logger.Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.Int64(logging.FieldAssetID, asset.ID),
	)
	return Submission{JobID: job.ExternalID, AssetID: asset.ID, Kind: kind}, nil
}
