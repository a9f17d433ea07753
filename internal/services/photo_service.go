package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "image/gif"
	_ "image/png"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"biodata/internal/config"
	"biodata/internal/metrics"
)

const (
	PhotoMain = "main"
	PhotoSide = "side"
)

// DefaultMaxPixels bounds the decoded size of an upload (width * height).
const DefaultMaxPixels = 40_000_000

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// PhotoService decodes, downsizes and stores applicant photos. Files are named
// after role and identifier, so a new upload for the same pair replaces the old one.
type PhotoService struct {
	Dir         string
	MaxWidth    int
	JPEGQuality int
	MaxPixels   int
}

func NewPhotoService(cfg config.PhotosConfig) *PhotoService {
	maxPixels := cfg.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &PhotoService{
		Dir:         filepath.Clean(cfg.Dir),
		MaxWidth:    cfg.MaxWidth,
		JPEGQuality: cfg.JPEGQuality,
		MaxPixels:   maxPixels,
	}
}

func ValidPhotoRole(role string) bool {
	return role == PhotoMain || role == PhotoSide
}

// Save decodes a base64 payload (optionally a data URL) and stores it.
func (s *PhotoService) Save(b64, role, identifier string) (string, error) {
	if i := strings.Index(b64, ";base64,"); i >= 0 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+len(";base64,"):]
	}
	b64 = strings.TrimSpace(b64)
	if b64 == "" {
		return "", fmt.Errorf("%w: empty image payload", ErrDecode)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	return s.SaveBytes(raw, role, identifier)
}

// SaveBytes stores already-decoded image bytes and returns the filename.
func (s *PhotoService) SaveBytes(raw []byte, role, identifier string) (string, error) {
	if !ValidPhotoRole(role) {
		return "", fmt.Errorf("%w: photo type must be main or side", ErrValidation)
	}
	name, err := PhotoFilename(role, identifier)
	if err != nil {
		return "", err
	}

	hdr, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: image: %v", ErrDecode, err)
	}
	if hdr.Width <= 0 || hdr.Height <= 0 || int64(hdr.Width)*int64(hdr.Height) > int64(s.MaxPixels) {
		return "", fmt.Errorf("%w: image is %dx%d, limit is %d pixels", ErrValidation, hdr.Width, hdr.Height, s.MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: image: %v", ErrDecode, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, s.resize(src), &jpeg.Options{Quality: s.JPEGQuality}); err != nil {
		return "", fmt.Errorf("%w: encode jpeg: %v", ErrIO, err)
	}

	if err := s.write(name, buf.Bytes()); err != nil {
		return "", err
	}
	metrics.PhotosSaved.WithLabelValues(role).Inc()
	logrus.WithFields(logrus.Fields{"file": name, "bytes": buf.Len()}).Debug("[photo][save] stored")
	return name, nil
}

// PhotoFilename builds "<role>_<identifier>.jpg". An identifier carrying
// characters outside [A-Za-z0-9_-] is stripped of them and suffixed with a
// hash of the raw value ("main_919000000001.3f2a9c1b0d4e.jpg"), so "+91..."
// and "91..." never share a file. The '.' cannot occur in a clean identifier.
func PhotoFilename(role, identifier string) (string, error) {
	id := unsafeNameChars.ReplaceAllString(identifier, "")
	if id == "" {
		return "", fmt.Errorf("%w: photo identifier is empty", ErrValidation)
	}
	if id != identifier {
		sum := sha256.Sum256([]byte(identifier))
		id += "." + hex.EncodeToString(sum[:6])
	}
	return role + "_" + id + ".jpg", nil
}

// resize scales src down to MaxWidth keeping the aspect ratio. It never
// enlarges and flattens transparency onto white.
func (s *PhotoService) resize(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if s.MaxWidth > 0 && w > s.MaxWidth {
		h = int(float64(h) * float64(s.MaxWidth) / float64(w))
		if h < 1 {
			h = 1
		}
		w = s.MaxWidth
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func (s *PhotoService) write(name string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("%w: create photo dir: %v", ErrIO, err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("%w: temp file: %v", ErrIO, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write photo: %v", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close photo: %v", ErrIO, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		logrus.WithError(err).Warn("[photo][save] chmod failed")
	}
	if err := os.Rename(tmpName, filepath.Join(s.Dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename photo: %v", ErrIO, err)
	}
	return nil
}
