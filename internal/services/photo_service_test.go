package services

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"biodata/internal/config"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newPhotoService(t *testing.T) *PhotoService {
	return NewPhotoService(config.PhotosConfig{Dir: t.TempDir(), MaxWidth: 100, JPEGQuality: 85})
}

func decodeStored(t *testing.T, s *PhotoService, name string) image.Config {
	t.Helper()
	f, err := os.Open(filepath.Join(s.Dir, name))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	return cfg
}

func TestPhoto_SaveDataURLDownsizes(t *testing.T) {
	s := newPhotoService(t)
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 400, 200))

	name, err := s.Save(payload, PhotoMain, "ab12cd34")
	require.NoError(t, err)
	require.Equal(t, "main_ab12cd34.jpg", name)

	cfg := decodeStored(t, s, name)
	require.Equal(t, 100, cfg.Width)
	require.Equal(t, 50, cfg.Height)
}

func TestPhoto_NoEnlargement(t *testing.T) {
	s := newPhotoService(t)
	name, err := s.SaveBytes(pngBytes(t, 40, 30), PhotoSide, "9198765")
	require.NoError(t, err)
	require.Equal(t, "side_9198765.jpg", name)

	cfg := decodeStored(t, s, name)
	require.Equal(t, 40, cfg.Width)
	require.Equal(t, 30, cfg.Height)
}

func TestPhoto_ReuploadOverwrites(t *testing.T) {
	s := newPhotoService(t)
	_, err := s.SaveBytes(pngBytes(t, 40, 30), PhotoMain, "x1")
	require.NoError(t, err)
	_, err = s.SaveBytes(pngBytes(t, 20, 10), PhotoMain, "x1")
	require.NoError(t, err)

	require.Equal(t, 20, decodeStored(t, s, "main_x1.jpg").Width)
	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPhoto_Errors(t *testing.T) {
	s := newPhotoService(t)

	_, err := s.Save("%%%not-base64", PhotoMain, "id")
	require.ErrorIs(t, err, ErrDecode)

	_, err = s.Save(base64.StdEncoding.EncodeToString([]byte("plain text")), PhotoMain, "id")
	require.ErrorIs(t, err, ErrDecode)

	_, err = s.SaveBytes(pngBytes(t, 2, 2), "profile", "id")
	require.ErrorIs(t, err, ErrValidation)

	_, err = s.SaveBytes(pngBytes(t, 2, 2), PhotoMain, "../..")
	require.ErrorIs(t, err, ErrValidation)
}

func TestPhoto_WriteFailureIsIOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewPhotoService(config.PhotosConfig{Dir: filepath.Join(blocker, "sub"), MaxWidth: 100, JPEGQuality: 85})
	_, err := s.SaveBytes(pngBytes(t, 2, 2), PhotoMain, "id")
	require.ErrorIs(t, err, ErrIO)
}

func TestPhotoFilename_DistinctContacts(t *testing.T) {
	plus, err := PhotoFilename(PhotoMain, "+919000000001")
	require.NoError(t, err)
	bare, err := PhotoFilename(PhotoMain, "919000000001")
	require.NoError(t, err)
	spaced, err := PhotoFilename(PhotoMain, "91 9000000001")
	require.NoError(t, err)

	require.Equal(t, "main_919000000001.jpg", bare)
	require.Regexp(t, `^main_919000000001\.[0-9a-f]{12}\.jpg$`, plus)
	require.NotEqual(t, plus, bare)
	require.NotEqual(t, plus, spaced)

	again, err := PhotoFilename(PhotoMain, "+919000000001")
	require.NoError(t, err)
	require.Equal(t, plus, again)
}

func TestPhoto_ContactsDoNotOverwriteEachOther(t *testing.T) {
	s := newPhotoService(t)
	a, err := s.SaveBytes(pngBytes(t, 40, 30), PhotoMain, "+919000000001")
	require.NoError(t, err)
	b, err := s.SaveBytes(pngBytes(t, 20, 10), PhotoMain, "919000000001")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	require.Equal(t, 40, decodeStored(t, s, a).Width)
	require.Equal(t, 20, decodeStored(t, s, b).Width)
}

func TestPhoto_RejectsOversizedDimensions(t *testing.T) {
	s := newPhotoService(t)
	s.MaxPixels = 30 * 30

	_, err := s.SaveBytes(pngBytes(t, 40, 30), PhotoMain, "big")
	require.ErrorIs(t, err, ErrValidation)
	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = s.SaveBytes(pngBytes(t, 30, 30), PhotoMain, "fits")
	require.NoError(t, err)
}

func TestPhoto_DefaultPixelCap(t *testing.T) {
	require.Equal(t, DefaultMaxPixels, NewPhotoService(config.PhotosConfig{Dir: t.TempDir()}).MaxPixels)
}
