package debug

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/banshee-data/fundus.report/internal/fundus/morphology"
)

// StretchedImage maps P linearly onto the full 0..255 range. A constant map
// is scaled by 255 instead.
func StretchedImage(pm *morphology.ProbabilityMap) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, pm.Width, pm.Height))
	lo, hi := pm.P[0], pm.P[0]
	for _, v := range pm.P {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	for i, v := range pm.P {
		s := v
		if hi > lo {
			s = (v - lo) / (hi - lo)
		}
		img.Pix[i] = uint8(s * 255)
	}
	return img
}

// BinaryImage renders the thresholded mask (strictly above tau) before
// cleaning.
func BinaryImage(pm *morphology.ProbabilityMap, tau float64) *image.Gray {
	return MaskImage(morphology.Binarize(pm, tau))
}

// MaskImage renders a mask, vessel pixels white.
func MaskImage(m *morphology.Mask) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, on := range m.Pix {
		if on {
			img.Pix[i] = 255
		}
	}
	return img
}

// Overlay draws the skeleton in red over a grey rendering of the cleaned mask.
func Overlay(mask, skeleton *morphology.Mask) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, mask.Width, mask.Height))
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			c := color.RGBA{A: 255}
			switch {
			case skeleton != nil && skeleton.At(x, y):
				c = color.RGBA{R: 255, A: 255}
			case mask.At(x, y):
				c = color.RGBA{R: 128, G: 128, B: 128, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
