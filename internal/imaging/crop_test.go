package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/digkill/chimeralens/internal/models"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestCropPNG(t *testing.T) {
	data := encodePNG(t, 100, 80)

	tests := []struct {
		name  string
		sel   models.FaceSelection
		wantW int
		wantH int
	}{
		{"inside", models.FaceSelection{X: 10, Y: 20, Width: 30, Height: 40}, 30, 40},
		{"clamped to bounds", models.FaceSelection{X: 90, Y: 70, Width: 50, Height: 50}, 10, 10},
		{"negative origin", models.FaceSelection{X: -5, Y: -5, Width: 15, Height: 10}, 10, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, contentType, err := Crop(data, tt.sel)
			if err != nil {
				t.Fatalf("crop: %v", err)
			}
			if contentType != "image/png" {
				t.Fatalf("content type %q", contentType)
			}
			img, err := png.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if img.Bounds().Dx() != tt.wantW || img.Bounds().Dy() != tt.wantH {
				t.Fatalf("got %v, want %dx%d", img.Bounds(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestCropKeepsPixels(t *testing.T) {
	out, _, err := Crop(encodePNG(t, 50, 50), models.FaceSelection{X: 7, Y: 9, Width: 5, Height: 5})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	img, _ := png.Decode(bytes.NewReader(out))
	r, g, _, _ := img.At(0, 0).RGBA()
	if r>>8 != 7 || g>>8 != 9 {
		t.Fatalf("expected origin pixel (7,9), got (%d,%d)", r>>8, g>>8)
	}
}

func TestCropJPEGOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 20, 20)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, contentType, err := Crop(buf.Bytes(), models.FaceSelection{Width: 10, Height: 10})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if contentType != "image/jpeg" {
		t.Fatalf("content type %q", contentType)
	}
}

func TestCropErrors(t *testing.T) {
	if _, _, err := Crop([]byte("not an image"), models.FaceSelection{Width: 1, Height: 1}); err == nil {
		t.Fatal("expected decode error")
	}
	_, _, err := Crop(encodePNG(t, 10, 10), models.FaceSelection{X: 20, Y: 20, Width: 5, Height: 5})
	if !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
}

// withOrientation inserts a minimal big-endian EXIF APP1 segment carrying
// the given orientation tag right after the JPEG SOI marker.
func withOrientation(jpg []byte, orientation byte) []byte {
	app1 := []byte{
		0xFF, 0xE1, 0x00, 0x22,
		'E', 'x', 'i', 'f', 0, 0,
		'M', 'M', 0x00, 0x2A, 0, 0, 0, 8,
		0x00, 0x01,
		0x01, 0x12, 0x00, 0x03, 0, 0, 0, 1, 0x00, orientation, 0, 0,
		0, 0, 0, 0,
	}
	out := append([]byte{}, jpg[:2]...)
	out = append(out, app1...)
	return append(out, jpg[2:]...)
}

func TestCropAppliesEXIFOrientation(t *testing.T) {
	// Stored 40x20 with a red left half and a blue right half. Orientation 6
	// displays it rotated clockwise as 20x40, red on top and blue below.
	raw := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 20 {
				c = color.RGBA{B: 255, A: 255}
			}
			raw.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, raw, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, contentType, err := Crop(withOrientation(buf.Bytes(), 6), models.FaceSelection{X: 0, Y: 20, Width: 20, Height: 20})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if contentType != "image/jpeg" {
		t.Fatalf("content type %q", contentType)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 20 {
		t.Fatalf("got %v, want 20x20", img.Bounds())
	}
	r, _, b, _ := img.At(10, 10).RGBA()
	if b>>8 < 200 || r>>8 > 60 {
		t.Fatalf("expected the blue half of the displayed image, got r=%d b=%d", r>>8, b>>8)
	}
}
