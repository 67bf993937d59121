// Package sampler extracts an evenly time-spaced sequence of frames from
// a video file using ffmpeg and ffprobe.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/vidsim/vidsim/internal/models"
)

// Sampler produces an ordered sequence of frames covering a video from
// start to end. An empty sequence with a nil error means the file had no
// decodable frames; callers decide whether that is fatal.
type Sampler interface {
	Sample(ctx context.Context, videoPath, workDir string, targetFPS float64, maxFrames int) ([]models.Frame, error)
}

// FFmpeg samples frames by walking the video in native frame order and
// keeping every step-th frame, where step is derived from the native
// frame rate reported by ffprobe.
type FFmpeg struct {
	logger *slog.Logger
}

func NewFFmpeg(logger *slog.Logger) *FFmpeg {
	return &FFmpeg{logger: logger}
}

// Sample decodes the selected frames as JPEGs into workDir/frames and
// returns them in order. maxFrames <= 0 means no cap.
func (f *FFmpeg) Sample(ctx context.Context, videoPath, workDir string, targetFPS float64, maxFrames int) ([]models.Frame, error) {
	nativeFPS, err := f.nativeFPS(ctx, videoPath)
	if err != nil {
		// Unreadable metadata clamps the step to 1 rather than failing.
		f.logger.Warn("could not read native frame rate", "video", videoPath, "error", err)
		nativeFPS = 0
	}
	step := stepFor(nativeFPS, targetFPS)

	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frames directory: %w", err)
	}

	args := []string{
		"-i", videoPath,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", step),
		"-vsync", "vfr",
		"-q:v", "2",
	}
	if maxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(maxFrames))
	}
	args = append(args, "-y", filepath.Join(framesDir, "frame_%06d.jpg"))

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, runErr := cmd.CombinedOutput()

	paths, err := filepath.Glob(filepath.Join(framesDir, "*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		if runErr != nil {
			f.logger.Warn("ffmpeg produced no frames",
				"video", videoPath, "error", runErr, "output", truncateOutput(output))
		}
		return nil, nil
	}
	if runErr != nil {
		// Decoder stopped mid-stream; the prefix that was written is
		// still a valid sample.
		f.logger.Warn("ffmpeg exited with error after writing frames",
			"video", videoPath, "frames", len(paths), "error", runErr)
	}
	if maxFrames > 0 && len(paths) > maxFrames {
		paths = paths[:maxFrames]
	}

	frames := make([]models.Frame, 0, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read frame %d: %w", i, err)
		}
		frames = append(frames, models.Frame{
			Index:     i,
			Timestamp: frameTimestamp(i, step, nativeFPS, targetFPS),
			Path:      p,
			JPEG:      data,
		})
	}

	f.logger.Debug("sampled frames",
		"video", videoPath, "native_fps", nativeFPS, "step", step, "frames", len(frames))
	return frames, nil
}

// nativeFPS asks ffprobe for the video stream's frame rate.
func (f *FFmpeg) nativeFPS(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseRate(strings.TrimSpace(string(output)))
}

// stepFor computes the native-frame stride for a target output rate.
// A native rate of 0 (unknown) or a nonsensical target clamps to 1 so the
// walk always keeps at least the first frame.
func stepFor(nativeFPS, targetFPS float64) int {
	if nativeFPS <= 0 || targetFPS <= 0 {
		return 1
	}
	step := int(nativeFPS / targetFPS)
	if step < 1 {
		step = 1
	}
	return step
}

// parseRate parses ffprobe rational rates such as "30000/1001" or "25".
func parseRate(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("parse rate %q: %w", s, err)
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, fmt.Errorf("parse rate %q: %w", s, err)
		}
		if d == 0 {
			return 0, nil
		}
		return n / d, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", s, err)
	}
	return v, nil
}

// frameTimestamp estimates where the i-th kept frame sits in the source.
// With an unknown native rate the target spacing is the best guess.
func frameTimestamp(i, step int, nativeFPS, targetFPS float64) float64 {
	if nativeFPS > 0 {
		return float64(i*step) / nativeFPS
	}
	if targetFPS > 0 {
		return float64(i) / targetFPS
	}
	return float64(i)
}

func truncateOutput(output []byte) string {
	const limit = 512
	s := string(output)
	if len(s) > limit {
		return s[len(s)-limit:]
	}
	return s
}
