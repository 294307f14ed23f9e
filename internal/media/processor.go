package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// ErrFetch reports a failure downloading the source file.
var ErrFetch = errors.New("media: fetch failed")

const (
	defaultMaxDownloadBytes = 512 << 20
	defaultWorkers          = 4
	defaultFetchTimeout     = 2 * time.Minute
)

// Config controls a Processor. Zero values pick sensible defaults.
type Config struct {
	HTTPClient *http.Client
	FFmpegPath string
	// Workers bounds how many downloads transcode or resize at once.
	Workers int
	TempDir string
	// MaxDownloadBytes caps the source file size.
	MaxDownloadBytes int64
	Logger           *slog.Logger
}

// Processor fetches remote asset files and applies a size preset before
// handing the bytes back to the caller.
type Processor struct {
	client   *http.Client
	ffmpeg   string
	sem      chan struct{}
	tempDir  string
	maxBytes int64
	logger   *slog.Logger
}

// Result is a processed media payload ready to stream to a client.
type Result struct {
	Data        []byte
	ContentType string
	Filename    string
}

// NewProcessor builds a Processor from cfg.
func NewProcessor(cfg Config) *Processor {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	ffmpeg := cfg.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	maxBytes := cfg.MaxDownloadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxDownloadBytes
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		client:   client,
		ffmpeg:   ffmpeg,
		sem:      make(chan struct{}, workers),
		tempDir:  tempDir,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch downloads fileURL and applies sizeLabel. An empty label returns the
// file untouched. Unsupported content types pass through unchanged so the
// storefront can still serve archives and documents from the same endpoint.
func (p *Processor) Fetch(ctx context.Context, fileURL, sizeLabel string) (*Result, error) {
	if fileURL == "" {
		return nil, errors.New("file url is required")
	}

	data, contentType, err := p.download(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	filename := path.Base(fileURL)
	if idx := strings.IndexByte(filename, '?'); idx >= 0 {
		filename = filename[:idx]
	}
	result := &Result{Data: data, ContentType: contentType, Filename: filename}
	if sizeLabel == "" {
		return result, nil
	}

	// A label that does not match the content type falls through to the
	// original bytes rather than failing the request.
	switch {
	case strings.HasPrefix(contentType, "image/"):
		width, height, ok := ImagePreset(sizeLabel)
		if !ok {
			return result, nil
		}
		resized, err := p.resizeImage(ctx, data, contentType, width, height)
		if err != nil {
			return nil, err
		}
		result.Data = resized
		return result, nil
	case strings.HasPrefix(contentType, "video/"):
		scale, ok := VideoScale(sizeLabel)
		if !ok {
			return result, nil
		}
		transcoded, err := p.transcodeVideo(ctx, data, scale)
		if err != nil {
			return nil, err
		}
		result.Data = transcoded
		result.ContentType = "video/mp4"
		result.Filename = replaceExt(filename, ".mp4")
		return result, nil
	default:
		return result, nil
	}
}

func (p *Processor) download(ctx context.Context, fileURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: source returned status %d", ErrFetch, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, "", fmt.Errorf("%w: source exceeds %d bytes", ErrFetch, p.maxBytes)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return data, contentType, nil
}

func (p *Processor) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) release() {
	<-p.sem
}

func (p *Processor) resizeImage(ctx context.Context, data []byte, contentType string, width, height int) ([]byte, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", contentType, err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, dst)
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return nil, fmt.Errorf("encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *Processor) transcodeVideo(ctx context.Context, data []byte, scale string) ([]byte, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	in, err := os.CreateTemp(p.tempDir, "media-in-*.bin")
	if err != nil {
		return nil, fmt.Errorf("create temp input: %w", err)
	}
	inPath := in.Name()
	defer os.Remove(inPath)
	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, fmt.Errorf("write temp input: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("close temp input: %w", err)
	}

	out, err := os.CreateTemp(p.tempDir, "media-out-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	args := []string{
		"-y",
		"-i", inPath,
		"-vf", scaleFilter(scale),
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-f", "mp4",
		outPath,
	}
	cmd := exec.CommandContext(ctx, p.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	start := time.Now()
	if err := cmd.Run(); err != nil {
		p.logger.Error("ffmpeg transcode failed", "error", err, "stderr", lastLine(stderr.Bytes()))
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	p.logger.Info("transcoded video", "scale", scale, "duration", time.Since(start))

	result, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read transcoded output: %w", err)
	}
	return result, nil
}

func replaceExt(filename, ext string) string {
	if idx := strings.LastIndexByte(filename, '.'); idx > 0 {
		return filename[:idx] + ext
	}
	return filename + ext
}

func lastLine(b []byte) string {
	lines := bytes.Split(bytes.TrimSpace(b), []byte{'\n'})
	if len(lines) == 0 {
		return ""
	}
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}
