package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"media-shrinker/internal/logging"
	"media-shrinker/internal/metrics"
)

// stderrTailBytes bounds how much ffmpeg diagnostic output is carried in errors.
const stderrTailBytes = 2048

// FFmpeg runs ffmpeg and ffprobe as child processes. It implements both
// ImageEncoder and VideoEncoder.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	threads     int
	processes   map[string]*exec.Cmd
	processMu   sync.Mutex
}

// NewFFmpeg locates ffmpeg and ffprobe in PATH.
func NewFFmpeg() (*FFmpeg, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFFmpegNotFound, err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %w", ErrFFmpegNotFound, err)
	}
	logging.Debug("  FFmpeg path: %s", ffmpegPath)
	logging.Debug("  FFprobe path: %s", ffprobePath)
	return NewFFmpegWithPaths(ffmpegPath, ffprobePath), nil
}

// NewFFmpegWithPaths creates an FFmpeg using explicit binary paths.
func NewFFmpegWithPaths(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		processes:   make(map[string]*exec.Cmd),
	}
}

// SetThreads caps the encoder threads of each video encode so concurrent
// jobs share the CPUs instead of each claiming all of them. 0 lets ffmpeg
// decide.
func (f *FFmpeg) SetThreads(n int) {
	f.threads = max(n, 0)
}

// Version returns the first line of `ffmpeg -version`.
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, f.ffmpegPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get ffmpeg version: %w", err)
	}
	line, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(line), nil
}

// ProbeDuration returns the container duration of src in seconds. A failing
// ffprobe is an error; output without a usable duration yields 0.
func (f *FFmpeg) ProbeDuration(ctx context.Context, src string) (float64, error) {
	out, err := f.run(ctx, "probe", "probe:"+src, f.ffprobePath, probeArgs(src)...)
	if err != nil {
		return 0, err
	}
	duration := parseDuration(out)
	logging.Debug("Probed %s: duration %.3fs", filepath.Base(src), duration)
	return duration, nil
}

// EncodeImage writes a single JPEG frame of src to dst.
func (f *FFmpeg) EncodeImage(ctx context.Context, src, dst string, p ImageParams) (int64, error) {
	if _, err := f.run(ctx, "image", dst, f.ffmpegPath, imageArgs(src, dst, p)...); err != nil {
		return 0, err
	}
	return fileSize(dst)
}

// EncodeVideo writes an H.264/AAC MP4 rendition of src to dst.
func (f *FFmpeg) EncodeVideo(ctx context.Context, src, dst string, p VideoParams) (int64, error) {
	args := withThreads(videoArgs(src, dst, p), f.threads)
	if _, err := f.run(ctx, "video", dst, f.ffmpegPath, args...); err != nil {
		return 0, err
	}
	return fileSize(dst)
}

// run starts bin, tracks the process under key until it exits and returns stdout.
func (f *FFmpeg) run(ctx context.Context, operation, key, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("Running %s %s", filepath.Base(bin), strings.Join(args, " "))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.TranscoderInvocationsTotal.WithLabelValues("ffmpeg", operation, "error").Inc()
		return nil, fmt.Errorf("failed to start %s: %w", filepath.Base(bin), err)
	}

	f.processMu.Lock()
	f.processes[key] = cmd
	f.processMu.Unlock()
	metrics.TranscoderProcessesRunning.Inc()

	err := cmd.Wait()

	metrics.TranscoderProcessesRunning.Dec()
	f.processMu.Lock()
	delete(f.processes, key)
	f.processMu.Unlock()

	metrics.TranscoderDuration.WithLabelValues("ffmpeg", operation).Observe(time.Since(start).Seconds())
	metrics.TranscoderInvocationsTotal.WithLabelValues("ffmpeg", operation, metrics.StatusLabel(err)).Inc()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s %s failed: %w: %s", filepath.Base(bin), operation, err, stderrTail(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Cleanup stops all active ffmpeg and ffprobe processes.
func (f *FFmpeg) Cleanup() {
	f.processMu.Lock()
	defer f.processMu.Unlock()

	for key, cmd := range f.processes {
		if cmd.Process != nil {
			logging.Info("Killing transcoding process for: %s", key)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill transcoding process for %s: %v", key, err)
			}
		}
	}
}

func probeArgs(src string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		src,
	}
}

func imageArgs(src, dst string, p ImageParams) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", src,
	}
	if p.MaxEdge > 0 {
		args = append(args, "-vf", scaleFilter(p.MaxEdge, false))
	}
	return append(args,
		"-frames:v", "1",
		"-map_metadata", "-1",
		"-q:v", strconv.Itoa(qscale(p.Quality)),
		dst,
	)
}

func videoArgs(src, dst string, p VideoParams) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", src,
		"-map", "0:v:0", "-map", "0:a:0?",
		"-c:v", "libx264",
		"-preset", p.Preset,
		"-profile:v", p.Profile,
		"-level", p.Level,
		"-pix_fmt", p.PixFmt,
		"-b:v", kbps(p.VideoKbps),
		"-maxrate", kbps(p.MaxrateKbps),
		"-bufsize", kbps(p.BufsizeKbps),
		"-vf", scaleFilter(p.MaxEdge, true),
	}
	if p.AudioKbps > 0 {
		args = append(args, "-c:a", "aac", "-b:a", kbps(p.AudioKbps))
	} else {
		args = append(args, "-an")
	}
	return append(args, "-movflags", "+faststart", dst)
}

// withThreads inserts -threads before the output path, the last argument.
func withThreads(args []string, threads int) []string {
	if threads <= 0 || len(args) == 0 {
		return args
	}
	out := make([]string, 0, len(args)+2)
	out = append(out, args[:len(args)-1]...)
	return append(out, "-threads", strconv.Itoa(threads), args[len(args)-1])
}

// scaleFilter caps the long edge at maxEdge without upscaling. Video needs
// even dimensions for yuv420p, so it is always scaled to a multiple of two.
func scaleFilter(maxEdge int, even bool) string {
	if maxEdge <= 0 {
		return "scale=trunc(iw/2)*2:trunc(ih/2)*2"
	}
	filter := fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease", maxEdge, maxEdge)
	if even {
		filter += ":force_divisible_by=2"
	}
	return filter
}

// qscale maps a 1..100 JPEG quality onto ffmpeg's 1..31 mjpeg scale, where
// lower is better.
func qscale(quality int) int {
	q := (100 - quality) / 2
	return max(1, min(31, q))
}

func kbps(v int) string {
	return strconv.Itoa(v) + "k"
}

func parseDuration(out []byte) float64 {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil || d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailBytes {
		s = "..." + s[len(s)-stderrTailBytes:]
	}
	if s == "" {
		return "no diagnostic output"
	}
	return s
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat output: %w", err)
	}
	return info.Size(), nil
}
