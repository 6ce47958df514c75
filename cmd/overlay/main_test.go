package main

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, path string, w, h int, fill color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestDirFrameSource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestPNG(t, filepath.Join(dir, "frame_000001.png"), 64, 48, color.RGBA{0, 255, 0, 255})
	writeTestPNG(t, filepath.Join(dir, "frame_000000.png"), 64, 48, color.RGBA{255, 0, 0, 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	src, err := newDirFrameSource(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, src.FrameCount(), "non-png entries ignored")

	w, h, err := src.frameSize()
	require.NoError(t, err)
	assert.Equal(t, 64, w)
	assert.Equal(t, 48, h)

	// Frames come back in filename order.
	first, err := src.Next()
	require.NoError(t, err)
	r, _, _, _ := first.At(0, 0).RGBA()
	assert.EqualValues(t, 0xffff, r, "frame_000000 served first")

	_, err = src.Next()
	require.NoError(t, err)
	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDirFrameSourceEmptyDir(t *testing.T) {
	t.Parallel()
	_, err := newDirFrameSource(t.TempDir())
	assert.Error(t, err)
}

func TestPNGFrameWriter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w := &pngFrameWriter{dir: dir}

	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	require.NoError(t, w.WriteFrame(7, img))

	f, err := os.Open(filepath.Join(dir, "frame_000007.png"))
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 16), decoded.Bounds())
}
