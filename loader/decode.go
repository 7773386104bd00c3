package loader

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/thraxil/resize"
	_ "golang.org/x/image/webp"
)

// Decoder turns a response body into an image no larger than px.
type Decoder interface {
	Decode(data []byte, px image.Point) (image.Image, error)
}

type DecoderFunc func(data []byte, px image.Point) (image.Image, error)

func (f DecoderFunc) Decode(data []byte, px image.Point) (image.Image, error) {
	return f(data, px)
}

// StandardDecoder handles jpeg, png, gif and webp and does a single
// downsample so the longest side fits the longest side of px. Images
// that already fit are returned as decoded.
type StandardDecoder struct{}

func (StandardDecoder) Decode(data []byte, px image.Point) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	m, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	size := downsampleSpec(m.Bounds(), px)
	if size == "" {
		return m, nil
	}
	out := resize.Resize(m, size)
	if out == nil {
		return nil, fmt.Errorf("could not resize %s image to %s", format, size)
	}
	return out, nil
}

// downsampleSpec returns the resize size string that bounds r by the
// longest side of px, or "" when r already fits.
func downsampleSpec(r image.Rectangle, px image.Point) string {
	maxPx := px.X
	if px.Y > maxPx {
		maxPx = px.Y
	}
	if maxPx <= 0 {
		return ""
	}
	if r.Dx() >= r.Dy() {
		if r.Dx() <= maxPx {
			return ""
		}
		return fmt.Sprintf("%dw", maxPx)
	}
	if r.Dy() <= maxPx {
		return ""
	}
	return fmt.Sprintf("%dh", maxPx)
}
