// Package fingerprint computes perceptual hashes of face samples. It backs
// the offline comparator: two captures of the same reference card or badge
// photo hash to nearby values, so a small Hamming distance means "same
// sample". It needs no network and no model server.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Hash holds the perceptual hashes of one sample.
type Hash struct {
	PHash uint64 // DCT-based perceptual hash
	DHash uint64 // gradient-based difference hash
}

// Compute decodes a sample image and computes its perceptual hashes.
func Compute(sample []byte) (Hash, error) {
	img, _, err := image.Decode(bytes.NewReader(sample))
	if err != nil {
		return Hash{}, fmt.Errorf("decoding sample: %w", err)
	}
	return Hash{PHash: computePHash(img), DHash: computeDHash(img)}, nil
}

// HammingDistance counts differing bits between two 64-bit hashes.
func HammingDistance(a, b uint64) int {
	xor := a ^ b
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1
	}
	return distance
}

// Distance combines both hashes into a single distance in [0,1].
// 0 means identical, 1 means every bit differs.
func (h Hash) Distance(other Hash) float64 {
	bits := HammingDistance(h.PHash, other.PHash) + HammingDistance(h.DHash, other.DHash)
	return float64(bits) / 128.0
}

// NormalizeSample re-encodes a capture as JPEG no larger than maxSize on
// either side. Applied at registration so stored reference samples stay
// bounded regardless of camera resolution.
func NormalizeSample(sample []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(sample))
	if err != nil {
		return nil, fmt.Errorf("decoding sample: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxSize && height <= maxSize {
		return sample, nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = height * maxSize / width
	} else {
		newHeight = maxSize
		newWidth = width * maxSize / height
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encoding normalized sample: %w", err)
	}
	return buf.Bytes(), nil
}

// computePHash computes a 64-bit DCT perceptual hash: resize to 32x32,
// grayscale, DCT, then threshold the low-frequency coefficients against
// their median.
func computePHash(img image.Image) uint64 {
	gray := toGrayscale(resize(img, 32, 32))
	dct := computeDCT(gray)

	lowFreq := make([]float64, 0, 64)
	for u := range 8 {
		for v := range 8 {
			if u == 0 && v == 0 {
				continue // skip DC component
			}
			lowFreq = append(lowFreq, dct[u][v])
		}
	}
	lowFreq = append(lowFreq, dct[8][0]) // pad to 64 values

	median := computeMedian(lowFreq)

	var hash uint64
	for i, v := range lowFreq {
		if v > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// computeDHash computes a 64-bit difference hash by comparing horizontally
// adjacent pixels of a 9x8 grayscale thumbnail.
func computeDHash(img image.Image) uint64 {
	gray := toGrayscale(resize(img, 9, 8))

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

func resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a column-major grid of luma values.
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}

// computeDCT computes the 2-D DCT-II of a square grayscale grid.
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	dct := make([][]float64, size)
	for u := range size {
		dct[u] = make([]float64, size)
		for v := range size {
			var sum float64
			for x := range size {
				for y := range size {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}
	return dct
}

func computeMedian(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
