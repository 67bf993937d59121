// Package upload owns the scratch directory lifecycle for uploaded
// videos. Each request gets its own directory so concurrent uploads can
// never collide on a shared path.
package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Save streams r into a fresh request-scoped directory under baseDir and
// returns the directory plus the video path inside it. The caller must
// remove workDir on every exit path.
func Save(baseDir string, r io.Reader) (workDir, videoPath string, err error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create scratch root: %w", err)
	}

	workDir = filepath.Join(baseDir, uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create request dir: %w", err)
	}

	videoPath = filepath.Join(workDir, "input.mp4")
	f, err := os.Create(videoPath)
	if err != nil {
		os.RemoveAll(workDir)
		return "", "", fmt.Errorf("create video file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.RemoveAll(workDir)
		return "", "", fmt.Errorf("write video file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(workDir)
		return "", "", fmt.Errorf("close video file: %w", err)
	}
	return workDir, videoPath, nil
}
