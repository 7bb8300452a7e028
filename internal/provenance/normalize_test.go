package provenance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "/tmp/a/b.jpg", OutputPath("/tmp/a/b.heic"))
	assert.Equal(t, "photo.jpg", OutputPath("photo.HEIF"))
}

func TestNormalizeFirstSuccessWins(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "x.heic", []byte("heic"))
	first := &fakeConverter{name: "first", data: []byte("jpeg")}
	second := &fakeConverter{name: "second", data: []byte("jpeg")}

	out, err := NewNormalizer(nil, first, second).Normalize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x.jpg"), out)
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, second.calls)
	assert.NoFileExists(t, src)
}

func TestNormalizeFallsBackAfterFailure(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "x.heic", []byte("not really heic"))
	fallback := &fakeConverter{name: "fallback", data: []byte("jpeg")}

	out, err := NewNormalizer(nil, HEICDecoder{}, fallback).Normalize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.calls)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestNormalizeRejectsEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "x.heic", []byte("heic"))

	_, err := NewNormalizer(nil, &fakeConverter{name: "empty"}).Normalize(context.Background(), src)
	assert.ErrorIs(t, err, ErrConversionFailed)
	assert.FileExists(t, src)
	assert.NoFileExists(t, filepath.Join(dir, "x.jpg"))
}

func TestNormalizeWithoutConverters(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "x.heic", []byte("heic"))

	_, err := NewNormalizer(nil).Normalize(context.Background(), src)
	assert.ErrorIs(t, err, ErrConversionFailed)
}

func TestNormalizeStopsOnCancelledContext(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "x.heic", []byte("heic"))
	conv := &fakeConverter{name: "never", data: []byte("jpeg")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewNormalizer(nil, conv).Normalize(ctx, src)
	assert.ErrorIs(t, err, ErrConversionFailed)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, conv.calls)
}

func TestMagickConverter(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		setHelperCommand(t, "convert-ok")
		dir := t.TempDir()
		src := writeFile(t, dir, "x.heic", []byte("heic"))

		out, err := NewNormalizer(nil, MagickConverter{}).Normalize(context.Background(), src)
		require.NoError(t, err)
		assert.FileExists(t, out)
		assert.NoFileExists(t, src)
	})

	t.Run("empty output", func(t *testing.T) {
		setHelperCommand(t, "convert-empty")
		dir := t.TempDir()
		src := writeFile(t, dir, "x.heic", []byte("heic"))

		_, err := NewNormalizer(nil, MagickConverter{}).Normalize(context.Background(), src)
		assert.ErrorIs(t, err, ErrConversionFailed)
		assert.NoFileExists(t, filepath.Join(dir, "x.jpg"))
	})

	t.Run("failure", func(t *testing.T) {
		setHelperCommand(t, "fail")
		dir := t.TempDir()
		src := writeFile(t, dir, "x.heic", []byte("heic"))

		_, err := NewNormalizer(nil, MagickConverter{Binary: "magick"}).Normalize(context.Background(), src)
		assert.ErrorIs(t, err, ErrConversionFailed)
		assert.FileExists(t, src)
	})
}
