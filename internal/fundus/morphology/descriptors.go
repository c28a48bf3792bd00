package morphology

import (
	"fmt"

	"github.com/banshee-data/fundus.report/internal/fundus"
)

// Descriptors are the handcrafted vessel features in their fixed output
// order. Undefined ratios are 0.
type Descriptors struct {
	// Density
	VesselDensity     float64 // foreground fraction of the whole image
	PeripheralDensity float64 // foreground fraction outside the central disk
	CentralDensity    float64 // foreground fraction inside the central disk

	// Morphological
	ComponentCount           float64 // 8-connected components
	LargestComponentFraction float64 // largest component / foreground pixels
	SkeletonAreaRatio        float64 // skeleton pixels / foreground pixels

	// Tortuosity
	TortuosityMean     float64 // arc / chord over skeleton branches
	TortuosityVariance float64 // population variance of the same

	// Caliber (pixels)
	CaliberMean float64 // 2 x distance transform along the skeleton
	CaliberStd  float64
	CaliberMax  float64

	// Complexity
	FractalDimension   float64 // box-counting slope on the mask
	BranchPointDensity float64 // skeleton junctions per image pixel
	EndPointDensity    float64 // skeleton end points per image pixel

	// Texture
	TextureVariance float64 // mean 15x15 local variance of P over the mask
}

var descriptorNames = [fundus.VesselDescriptorDim]string{
	"vessel_density",
	"peripheral_density",
	"central_density",
	"component_count",
	"largest_component_fraction",
	"skeleton_area_ratio",
	"tortuosity_mean",
	"tortuosity_variance",
	"caliber_mean",
	"caliber_std",
	"caliber_max",
	"fractal_dimension",
	"branch_point_density",
	"end_point_density",
	"texture_variance",
}

// Names returns the descriptor names in output order.
func Names() []string {
	out := make([]string, len(descriptorNames))
	copy(out, descriptorNames[:])
	return out
}

// Vector returns the descriptors in output order.
func (d Descriptors) Vector() []float64 {
	return []float64{
		d.VesselDensity,
		d.PeripheralDensity,
		d.CentralDensity,
		d.ComponentCount,
		d.LargestComponentFraction,
		d.SkeletonAreaRatio,
		d.TortuosityMean,
		d.TortuosityVariance,
		d.CaliberMean,
		d.CaliberStd,
		d.CaliberMax,
		d.FractalDimension,
		d.BranchPointDensity,
		d.EndPointDensity,
		d.TextureVariance,
	}
}

// Map returns the descriptors keyed by name.
func (d Descriptors) Map() map[string]float64 {
	v := d.Vector()
	out := make(map[string]float64, len(v))
	for i, name := range descriptorNames {
		out[name] = v[i]
	}
	return out
}

// Validate fails if any descriptor is NaN or infinite.
func (d Descriptors) Validate() error {
	v := d.Vector()
	if i := fundus.FirstNonFinite(v); i >= 0 {
		return &fundus.FeatureShapeError{
			Component: "vessel descriptors",
			Reason:    fmt.Sprintf("%s is %v", descriptorNames[i], v[i]),
		}
	}
	return nil
}
