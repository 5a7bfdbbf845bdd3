package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"course-backend/internal/composer"
	"course-backend/internal/shared/telemetry"
)

const (
	DefaultOffset = 8 * time.Second
	DefaultWidth  = 320

	// Seeking closer than this to the end of a stream yields no frame.
	tailGuard   = 100 * time.Millisecond
	jpegQuality = 80
)

// ErrUnavailable means no thumbnail could be produced for the file.
var ErrUnavailable = errors.New("thumbnail unavailable")

// Extractor grabs a still frame from a local video with ffprobe/ffmpeg and returns it as a
// JPEG data URI.
type Extractor struct {
	FFmpegPath  string
	FFprobePath string
	Width       int
	WorkDir     string
}

// NewExtractor returns an extractor using the given binaries; empty paths fall back to PATH lookup.
func NewExtractor(ffmpegPath, ffprobePath string) *Extractor {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = "ffprobe"
	}
	return &Extractor{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Width: DefaultWidth}
}

// AssertReady checks that both binaries resolve.
func (x *Extractor) AssertReady() error {
	for _, bin := range []string{x.FFmpegPath, x.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q: %w", bin, err)
		}
	}
	return nil
}

// Extract implements composer.ThumbnailExtractor.
func (x *Extractor) Extract(ctx context.Context, f composer.File, offset time.Duration) (string, error) {
	if f.Path == "" {
		return "", fmt.Errorf("%w: no local path", ErrUnavailable)
	}
	if offset <= 0 {
		offset = DefaultOffset
	}

	duration, err := x.probeDuration(ctx, f.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	at := ClampOffset(offset, duration)

	dir, err := os.MkdirTemp(x.WorkDir, "thumb-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			telemetry.Warn("media.thumbnail.cleanup_failed", map[string]any{"dir": dir, "err": err.Error()})
		}
	}()

	framePath := filepath.Join(dir, "frame.png")
	cmd := exec.CommandContext(ctx, x.FFmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(at),
		"-i", f.Path,
		"-frames:v", "1",
		"-y",
		framePath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%w: ffmpeg: %v; out=%s", ErrUnavailable, err, strings.TrimSpace(string(out)))
	}

	raw, err := os.ReadFile(framePath)
	if err != nil {
		return "", fmt.Errorf("%w: read frame: %v", ErrUnavailable, err)
	}
	return EncodeDataURI(raw, x.Width)
}

func (x *Extractor) probeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, x.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return ParseDuration(string(out))
}

// ParseDuration reads ffprobe's seconds value.
func ParseDuration(raw string) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" || v == "N/A" {
		return 0, errors.New("duration not reported")
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", v, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("non-positive duration %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// ClampOffset bounds offset to [0, duration-100ms].
func ClampOffset(offset, duration time.Duration) time.Duration {
	limit := duration - tailGuard
	if limit < 0 {
		limit = 0
	}
	if offset > limit {
		offset = limit
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

// EncodeDataURI decodes an image, scales it down to width (keeping aspect ratio) and
// returns it as a base64 JPEG data URI.
func EncodeDataURI(raw []byte, width int) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: decode frame: %v", ErrUnavailable, err)
	}
	b := img.Bounds()
	if width > 0 && b.Dx() > width {
		height := b.Dy() * width / b.Dx()
		if height < 1 {
			height = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

var _ composer.ThumbnailExtractor = (*Extractor)(nil)
