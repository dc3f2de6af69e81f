package submit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"mediaforge/internal/services"
	"mediaforge/internal/store"
)

// Overlay is a reusable overlay source in the overlay directory.
type Overlay struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	MediaType string `json:"media_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// IsVideo reports whether the overlay can serve as b-roll.
func (o Overlay) IsVideo() bool {
	return strings.HasPrefix(o.MediaType, "video/")
}

// ListOverlays returns the media files in the overlay directory, sorted by
// name. A missing directory yields an empty catalog.
func (s *Service) ListOverlays() ([]Overlay, error) {
	entries, err := os.ReadDir(s.cfg.Paths.OverlayDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrProcessing, "submit", "list overlays", s.cfg.Paths.OverlayDir, err)
	}
	overlays := make([]Overlay, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(s.cfg.Paths.OverlayDir, entry.Name())
		mtype, err := mimetype.DetectFile(path)
		if err != nil {
			continue
		}
		if !isMedia(mtype) && !strings.HasPrefix(mtype.String(), "image/") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		overlays = append(overlays, Overlay{
			Name:      strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Path:      path,
			MediaType: mtype.String(),
			SizeBytes: info.Size(),
		})
	}
	sort.Slice(overlays, func(i, j int) bool { return overlays[i].Name < overlays[j].Name })
	return overlays, nil
}

// resolveOverlay turns a path or catalog name into an absolute file path.
// B-roll names resolve to <overlay_dir>/<name>.mp4.
func (s *Service) resolveOverlay(kind store.Kind, source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", services.Wrap(services.ErrValidation, "submit", "resolve overlay", "overlay source is required", nil)
	}
	candidates := []string{source}
	if !filepath.IsAbs(source) && !strings.ContainsRune(source, filepath.Separator) {
		inDir := filepath.Join(s.cfg.Paths.OverlayDir, source)
		if filepath.Ext(source) == "" && kind == store.KindBRollOverlay {
			inDir += ".mp4"
		}
		candidates = append([]string{inDir}, candidates...)
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			return "", services.Wrap(services.ErrValidation, "submit", "resolve overlay", candidate, err)
		}
		return abs, nil
	}
	return "", services.Wrap(services.ErrNotFound, "submit", "resolve overlay", fmt.Sprintf("overlay %q", source), nil)
}
