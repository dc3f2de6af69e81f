package submit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"mediaforge/internal/fileutil"
	"mediaforge/internal/metrics"
	"mediaforge/internal/services"
	"mediaforge/internal/store"
)

// Upload copies the file at sourcePath into the media directory under a
// generated name, records it as an original asset, and submits its ingest
// job. Only audio and video files are accepted. When an upload directory is
// configured, sourcePath must resolve inside it.
func (s *Service) Upload(ctx context.Context, sourcePath string) (Submission, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return Submission{}, services.Wrap(services.ErrValidation, "submit", "upload", "source path is required", nil)
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		return Submission{}, services.Wrap(services.ErrNotFound, "submit", "upload", sourcePath, err)
	}
	if err := s.checkUploadRoot(sourcePath); err != nil {
		return Submission{}, err
	}
	if info.IsDir() {
		return Submission{}, services.Wrap(services.ErrValidation, "submit", "upload", fmt.Sprintf("%q is a directory", sourcePath), nil)
	}
	mtype, err := mimetype.DetectFile(sourcePath)
	if err != nil {
		return Submission{}, services.Wrap(services.ErrValidation, "submit", "upload", "detect media type", err)
	}
	if !isMedia(mtype) {
		return Submission{}, services.Wrap(services.ErrValidation, "submit", "upload",
			fmt.Sprintf("unsupported media type %s", mtype.String()), nil)
	}

	ext := strings.ToLower(filepath.Ext(sourcePath))
	if ext == "" {
		ext = mtype.Extension()
	}
	dest := filepath.Join(s.cfg.Paths.MediaDir, uuid.NewString()+ext)
	size, err := fileutil.CopyNew(sourcePath, dest)
	if err != nil {
		return Submission{}, services.Wrap(services.ErrProcessing, "submit", "upload", "copy into media directory", err)
	}

	name := filepath.Base(sourcePath)
	asset, err := s.store.CreateAsset(ctx, store.NewAsset{
		Name:         name,
		OriginalName: name,
		Path:         dest,
		Quality:      store.QualityOriginal,
	})
	if err != nil {
		_ = os.Remove(dest)
		return Submission{}, err
	}
	metrics.RecordUpload(mtype.String(), size)
	return s.createAndDispatch(ctx, asset, store.KindIngest, store.IngestParams{})
}

// isMedia accepts audio and video types.
func isMedia(mtype *mimetype.MIME) bool {
	value := mtype.String()
	return strings.HasPrefix(value, "video/") || strings.HasPrefix(value, "audio/")
}

// checkUploadRoot rejects sources outside the configured upload directory.
// Symlinks are resolved first so a link inside the root cannot point out.
func (s *Service) checkUploadRoot(sourcePath string) error {
	root := strings.TrimSpace(s.cfg.Paths.UploadDir)
	if root == "" {
		return nil
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return services.Wrap(services.ErrPrecondition, "submit", "upload", "resolve upload_dir "+root, err)
	}
	resolved, err := filepath.EvalSymlinks(sourcePath)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "submit", "upload", sourcePath, err)
	}
	if resolved, err = filepath.Abs(resolved); err != nil {
		return services.Wrap(services.ErrValidation, "submit", "upload", sourcePath, err)
	}
	rel, err := filepath.Rel(resolvedRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return services.Wrap(services.ErrValidation, "submit", "upload",
			fmt.Sprintf("%q is outside upload_dir %s", sourcePath, root), nil)
	}
	return nil
}
