package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"sort"
	"strconv"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

const (
	sampleSize = 32
	lowFreq    = 8

	// MaxPixels bounds the decoded size of a single photo (8000x5000)
	MaxPixels = 40_000_000
)

var (
	ErrInvalidFingerprint = errors.New("fingerprint must be 16 hex characters")
	ErrImageTooLarge      = errors.New("image dimensions exceed limit")
)

// Decode decodes JPEG, PNG, GIF, BMP and WebP images. The header is read
// first so oversized images are rejected before any pixel allocation.
func Decode(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("decode image %dx%d: %w", cfg.Width, cfg.Height, ErrImageTooLarge)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Compute returns the 64-bit DCT perceptual hash of img as 16 hex characters.
// Re-encodes of the same photo hash identically; different photos of the
// same person do not.
func Compute(img image.Image) domain.Fingerprint {
	return domain.Fingerprint(fmt.Sprintf("%016x", computePHash(img)))
}

// FromBytes decodes data and computes its fingerprint
func FromBytes(data []byte) (domain.Fingerprint, error) {
	img, _, err := Decode(data)
	if err != nil {
		return "", err
	}
	return Compute(img), nil
}

// Parse converts a hex fingerprint back to its bits
func Parse(fp domain.Fingerprint) (uint64, error) {
	if len(fp) != 16 {
		return 0, ErrInvalidFingerprint
	}
	v, err := strconv.ParseUint(string(fp), 16, 64)
	if err != nil {
		return 0, ErrInvalidFingerprint
	}
	return v, nil
}

// HammingDistance counts differing bits between two hashes.
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

func computePHash(img image.Image) uint64 {
	// 1. Resize to 32x32 and take luma
	gray := toGrayscale(resizeImage(img, sampleSize, sampleSize))

	// 2. 2D DCT-II
	dct := computeDCT(gray)

	// 3. Keep the top-left 8x8 block, DC term included
	coeffs := make([]float64, 0, lowFreq*lowFreq)
	for y := range lowFreq {
		for x := range lowFreq {
			coeffs = append(coeffs, dct[y][x])
		}
	}

	// 4. One bit per coefficient above the median, row-major, MSB first
	median := computeMedian(coeffs)
	var hash uint64
	for i, c := range coeffs {
		if c > median {
			hash |= 1 << (63 - i)
		}
	}

	return hash
}

func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale returns rows of ITU-R BT.601 luma values in 0-255
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	gray := make([][]float64, bounds.Dy())
	for y := range bounds.Dy() {
		gray[y] = make([]float64, bounds.Dx())
		for x := range bounds.Dx() {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray[y][x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}

func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)

	cosTable := make([][]float64, size)
	for k := range size {
		cosTable[k] = make([]float64, size)
		for n := range size {
			cosTable[k][n] = math.Cos(math.Pi * float64(k) * (2*float64(n) + 1) / (2 * float64(size)))
		}
	}

	// separable: columns first, then rows
	tmp := make([][]float64, size)
	for u := range size {
		tmp[u] = make([]float64, size)
		for x := range size {
			var sum float64
			for y := range size {
				sum += gray[y][x] * cosTable[u][y]
			}
			tmp[u][x] = 2 * sum
		}
	}

	dct := make([][]float64, size)
	for u := range size {
		dct[u] = make([]float64, size)
		for v := range size {
			var sum float64
			for x := range size {
				sum += tmp[u][x] * cosTable[v][x]
			}
			dct[u][v] = 2 * sum
		}
	}

	return dct
}

func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
