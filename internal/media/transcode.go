package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const defaultTranscodeTimeout = 30 * time.Second

// ErrEmptyOutput is returned when ffmpeg exits cleanly but writes nothing.
var ErrEmptyOutput = errors.New("media: transcoder produced no output")

// FFmpegTranscoder converts audio to mono 44.1kHz 96kbps MP3 with an
// external ffmpeg binary.
type FFmpegTranscoder struct {
	Path    string
	Timeout time.Duration
	// ScratchDir is the parent for per-call temp directories; empty means os.TempDir.
	ScratchDir string
}

func NewFFmpegTranscoder(path string, timeout time.Duration) *FFmpegTranscoder {
	if path == "" {
		path = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = defaultTranscodeTimeout
	}
	return &FFmpegTranscoder{Path: path, Timeout: timeout}
}

// Transcode runs ffmpeg in a private scratch directory that is removed on
// every exit path, so concurrent calls never share files.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("media: transcode: empty input")
	}
	dir, err := os.MkdirTemp(t.ScratchDir, "inbox-transcode-*")
	if err != nil {
		return nil, fmt.Errorf("media: transcode: scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input")
	out := filepath.Join(dir, "output.mp3")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("media: transcode: write input: %w", err)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultTranscodeTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	path := t.Path
	if path == "" {
		path = "ffmpeg"
	}
	cmd := exec.CommandContext(runCtx, path,
		"-y", "-i", in,
		"-vn", "-ac", "1", "-ar", "44100", "-b:a", "96k",
		"-f", "mp3", out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("media: transcode: ffmpeg: %w: %s", err, tail(stderr.Bytes(), 512))
	}

	converted, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("media: transcode: read output: %w", err)
	}
	if len(converted) == 0 {
		return nil, ErrEmptyOutput
	}
	return converted, nil
}

func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
