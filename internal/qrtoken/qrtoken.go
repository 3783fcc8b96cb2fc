// Package qrtoken encodes and decodes the QR attendance cards handed out at
// enrollment. The card payload is the student's roll number.
package qrtoken

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/skip2/go-qrcode"
)

// ErrNotReadable means the submitted image contains no decodable QR code.
var ErrNotReadable = errors.New("no readable QR code in image")

// cardSize is the edge length of generated card images in pixels.
const cardSize = 256

// Encode renders a roll number as a PNG QR card. Low error correction
// matches the print-and-scan use: cards are scanned flat under decent light.
func Encode(roll string) ([]byte, error) {
	if roll == "" {
		return nil, errors.New("empty roll number")
	}

	png, err := qrcode.Encode(roll, qrcode.Low, cardSize)
	if err != nil {
		return nil, fmt.Errorf("could not render QR card: %w", err)
	}

	return png, nil
}

// Decode extracts the roll number from a scanned card image. Any decode
// failure collapses to ErrNotReadable so callers can treat blurry captures,
// non-QR images and corrupt uploads uniformly.
func Decode(imageData []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return "", ErrNotReadable
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", ErrNotReadable
	}

	result, err := zxqrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", ErrNotReadable
	}

	text := result.GetText()
	if text == "" {
		return "", ErrNotReadable
	}

	return text, nil
}
