package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonathan/kids-video-pipeline/internal/fetch"
	"github.com/jonathan/kids-video-pipeline/internal/metadata"
)

// ExportDir is the directory, next to the video, that receives exported assets.
const ExportDir = "instagram_export"

// Export writes the reel, its cover and caption.txt to a directory for
// manual posting.
type Export struct {
	dir string
}

// NewExport creates an exporter. An empty dir exports next to each video.
func NewExport(dir string) *Export {
	return &Export{dir: dir}
}

// Upload implements Uploader. The result id and URL are the export directory.
func (e *Export) Upload(_ context.Context, m Media) (*Result, error) {
	if m.Metadata == nil {
		return nil, fmt.Errorf("export requires metadata")
	}
	dir := e.dir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(m.Video), ExportDir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	if err := copyFile(m.Video, filepath.Join(dir, "reel"+filepath.Ext(m.Video))); err != nil {
		return nil, err
	}
	if m.Thumbnail != "" {
		if err := copyFile(m.Thumbnail, filepath.Join(dir, "cover"+filepath.Ext(m.Thumbnail))); err != nil {
			return nil, err
		}
	}
	if err := fetch.WriteFile(filepath.Join(dir, "caption.txt"), []byte(metadata.ReelCaption(m.Metadata))); err != nil {
		return nil, fmt.Errorf("failed to write caption: %w", err)
	}

	logf("instagram", "Reel assets exported to %s", dir)
	return &Result{Platform: ExportName, ID: dir, URL: dir}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
