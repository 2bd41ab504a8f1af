package media

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFFmpegTranscoderMissingBinaryCleansUp(t *testing.T) {
	scratch := t.TempDir()
	tc := NewFFmpegTranscoder(filepath.Join(scratch, "no-such-ffmpeg"), time.Second)
	tc.ScratchDir = scratch

	_, err := tc.Transcode(context.Background(), []byte("OggS"))
	require.Error(t, err)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory must be removed on failure")
}

func TestFFmpegTranscoderEmptyInput(t *testing.T) {
	tc := NewFFmpegTranscoder("", 0)
	_, err := tc.Transcode(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, "ffmpeg", tc.Path)
	assert.Equal(t, defaultTranscodeTimeout, tc.Timeout)
}

func TestFFmpegTranscoderGarbageInput(t *testing.T) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	scratch := t.TempDir()
	tc := NewFFmpegTranscoder(path, 10*time.Second)
	tc.ScratchDir = scratch

	_, err = tc.Transcode(context.Background(), []byte("definitely not audio"))
	require.Error(t, err)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
