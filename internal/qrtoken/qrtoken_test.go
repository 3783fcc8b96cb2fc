package qrtoken

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rolls := []string{
		"BT21CSA001",
		"BT22CSH123",
		"BT20CSD007",
	}

	for _, roll := range rolls {
		t.Run(roll, func(t *testing.T) {
			card, err := Encode(roll)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if len(card) == 0 {
				t.Fatal("empty card image")
			}

			decoded, err := Decode(card)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if decoded != roll {
				t.Errorf("expected %s, got %s", roll, decoded)
			}
		})
	}
}

func TestEncodeEmptyRoll(t *testing.T) {
	if _, err := Encode(""); err == nil {
		t.Error("expected error for empty roll number")
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte("definitely not an image")); !errors.Is(err, ErrNotReadable) {
		t.Errorf("expected ErrNotReadable, got %v", err)
	}
}

func TestDecodeImageWithoutCode(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.White)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("could not encode test image: %v", err)
	}

	if _, err := Decode(buf.Bytes()); !errors.Is(err, ErrNotReadable) {
		t.Errorf("expected ErrNotReadable, got %v", err)
	}
}
