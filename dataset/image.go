package dataset

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Decoder turns an image file into pixels.
type Decoder interface {
	Decode(path string) (image.Image, error)
}

type DecoderFunc func(path string) (image.Image, error)

func (f DecoderFunc) Decode(path string) (image.Image, error) {
	return f(path)
}

// DecodeRGB reads the image at path into an opaque NRGBA buffer, whatever
// the source color model is (grayscale, CMYK, paletted). Transparency is
// dropped: the color channels keep their values and alpha is set to 255.
func DecodeRGB(path string) (image.Image, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %q", path)
	}

	dst := imaging.Clone(src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst, nil
}
