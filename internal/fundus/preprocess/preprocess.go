// Package preprocess turns a fundus image into the input tensor a specific
// model was trained on.
//
// Each model carries a tagged Spec resolved once when the model registry is
// built. The same code path serves every model; what differs is data, so a
// standardisation constant can never leak from one model to another.
package preprocess

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/banshee-data/fundus.report/internal/fundus"
)

// Interpolation selects the resampling kernel.
type Interpolation string

const (
	// Bicubic uses the Catmull-Rom cubic kernel.
	Bicubic  Interpolation = "bicubic"
	Bilinear Interpolation = "bilinear"
	Nearest  Interpolation = "nearest"
)

func (i Interpolation) kernel() (draw.Interpolator, error) {
	switch i {
	case Bicubic:
		return draw.CatmullRom, nil
	case Bilinear:
		return draw.BiLinear, nil
	case Nearest:
		return draw.NearestNeighbor, nil
	}
	return nil, fmt.Errorf("unknown interpolation %q", string(i))
}

// ImageNet channel statistics used by the hypertension and CIMT models.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Spec is the per-model preprocessing record.
type Spec struct {
	Model         fundus.ModelID
	Width         int
	Height        int
	Interpolation Interpolation
	// Standardize applies (x-Mean)/Std per channel after scaling to [0,1].
	// When false the tensor keeps raw [0,1] intensities.
	Standardize bool
	Mean        [3]float32
	Std         [3]float32
}

// Validate checks the record is usable.
func (s Spec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("preprocess %s: invalid size %dx%d", s.Model, s.Width, s.Height)
	}
	if _, err := s.Interpolation.kernel(); err != nil {
		return fmt.Errorf("preprocess %s: %w", s.Model, err)
	}
	if s.Standardize {
		for c, v := range s.Std {
			if v <= 0 {
				return fmt.Errorf("preprocess %s: std[%d]=%v must be positive", s.Model, c, v)
			}
		}
	}
	return nil
}

// Shape returns the NCHW tensor shape produced by Apply.
func (s Spec) Shape() []int64 {
	return []int64{1, 3, int64(s.Height), int64(s.Width)}
}

// DefaultSpecs returns the records for the three feature models.
func DefaultSpecs() map[fundus.ModelID]Spec {
	return map[fundus.ModelID]Spec{
		fundus.ModelHypertension: {
			Model:         fundus.ModelHypertension,
			Width:         224,
			Height:        224,
			Interpolation: Bicubic,
			Standardize:   true,
			Mean:          ImageNetMean,
			Std:           ImageNetStd,
		},
		fundus.ModelCIMT: {
			Model:         fundus.ModelCIMT,
			Width:         512,
			Height:        512,
			Interpolation: Bilinear,
			Standardize:   true,
			Mean:          ImageNetMean,
			Std:           ImageNetStd,
		},
		// The segmentation network was trained on raw intensities.
		fundus.ModelVessel: {
			Model:         fundus.ModelVessel,
			Width:         512,
			Height:        512,
			Interpolation: Bilinear,
			Standardize:   false,
		},
	}
}

// Apply resizes img and lays it out as a [1,3,H,W] float32 tensor.
func Apply(img *fundus.Image, spec Spec) (*fundus.Tensor, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	resized := Resize(img, spec.Width, spec.Height, spec.Interpolation)

	plane := spec.Width * spec.Height
	data := make([]float32, 3*plane)
	for y := 0; y < spec.Height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < spec.Width; x++ {
			p := row[x*4:]
			i := y*spec.Width + x
			for c := 0; c < 3; c++ {
				v := float32(p[c]) / 255
				if spec.Standardize {
					v = (v - spec.Mean[c]) / spec.Std[c]
				}
				data[c*plane+i] = v
			}
		}
	}
	return fundus.NewTensor(spec.Shape(), data)
}

// Resize resamples img to width x height. An image already at the target
// size is copied without resampling.
func Resize(img *fundus.Image, width, height int, interp Interpolation) *image.RGBA {
	src := img.RGBA()
	if img.Width == width && img.Height == height {
		return src
	}
	kernel, err := interp.kernel()
	if err != nil {
		kernel = draw.BiLinear
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	kernel.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
