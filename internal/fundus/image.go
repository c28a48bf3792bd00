package fundus

import (
	"fmt"
	"image"
	"image/color"
)

// Eye identifies which eye an image was taken from.
type Eye string

const (
	EyeLeft  Eye = "left"
	EyeRight Eye = "right"
)

// Image is a decoded fundus photograph: interleaved 8-bit RGB, row-major.
// It is request scoped and never persisted.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewImage wraps an interleaved pixel buffer after validating it.
func NewImage(width, height, channels int, pix []uint8) (*Image, error) {
	img := &Image{Width: width, Height: height, Channels: channels, Pix: pix}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// FromImage converts a decoded image.Image to RGB. Single-channel (gray,
// alpha) and four-channel (CMYK) colour models are rejected.
func FromImage(src image.Image) (*Image, error) {
	if src == nil {
		return nil, &InvalidInputError{Field: "image", Reason: "nil image"}
	}
	switch src.ColorModel() {
	case color.GrayModel, color.Gray16Model, color.AlphaModel, color.Alpha16Model:
		return nil, &InvalidInputError{Field: "image", Reason: "expected 3 channels, got 1"}
	case color.CMYKModel:
		return nil, &InvalidInputError{Field: "image", Reason: "expected 3 channels, got 4"}
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, &InvalidInputError{Field: "image", Reason: fmt.Sprintf("zero-area image %dx%d", w, h)}
	}
	pix := make([]uint8, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			pix = append(pix, c.R, c.G, c.B)
		}
	}
	return NewImage(w, h, 3, pix)
}

// Validate rejects zero-area images, channel counts other than 3 and buffers
// whose length disagrees with the declared geometry.
func (im *Image) Validate() error {
	if im == nil {
		return &InvalidInputError{Field: "image", Reason: "nil image"}
	}
	if im.Width <= 0 || im.Height <= 0 {
		return &InvalidInputError{Field: "image", Reason: fmt.Sprintf("zero-area image %dx%d", im.Width, im.Height)}
	}
	if im.Channels != 3 {
		return &InvalidInputError{Field: "image", Reason: fmt.Sprintf("expected 3 channels, got %d", im.Channels)}
	}
	if want := im.Width * im.Height * im.Channels; len(im.Pix) != want {
		return &InvalidInputError{Field: "image", Reason: fmt.Sprintf("pixel buffer has %d bytes, want %d", len(im.Pix), want)}
	}
	return nil
}

// RGBA returns an opaque *image.RGBA view suitable for resampling.
func (im *Image) RGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	for i, j := 0, 0; i < len(im.Pix); i, j = i+3, j+4 {
		out.Pix[j] = im.Pix[i]
		out.Pix[j+1] = im.Pix[i+1]
		out.Pix[j+2] = im.Pix[i+2]
		out.Pix[j+3] = 0xff
	}
	return out
}
