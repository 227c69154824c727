// Package imaging crops uploaded source photos to a caller-chosen face box.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/digkill/chimeralens/internal/models"
)

var ErrEmptySelection = errors.New("face selection does not overlap the image")

// Crop decodes data, cuts out sel and re-encodes the region. Selections are
// in displayed coordinates, so EXIF orientation is applied first. PNG input
// stays PNG; every other format is written as JPEG.
func Crop(data []byte, sel models.FaceSelection) ([]byte, string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	rect := image.Rect(b.Min.X+sel.X, b.Min.Y+sel.Y, b.Min.X+sel.X+sel.Width, b.Min.Y+sel.Y+sel.Height).Intersect(b)
	if rect.Empty() {
		return nil, "", ErrEmptySelection
	}
	dst := imaging.Crop(src, rect)

	var buf bytes.Buffer
	if format == "png" {
		if err := imaging.Encode(&buf, dst, imaging.PNG); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	}
	if err := imaging.Encode(&buf, dst, imaging.JPEG, imaging.JPEGQuality(92)); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}
