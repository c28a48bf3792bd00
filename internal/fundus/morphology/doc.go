// Package morphology owns the handcrafted vessel descriptors computed from a
// segmentation probability map.
//
// The pipeline is a chain of pure stages, each returning a new value:
//
//	ProbabilityMap -> Binarize -> Clean -> Descriptors
//
// Responsibilities:
//   - thresholding and 3x3 cross closing/opening of the vessel mask
//   - connected components, skeletonisation and the Euclidean distance
//     transform used by the caliber descriptors
//   - the fixed, ordered set of 15 descriptors and their finiteness check
//
// Dependency rule: morphology imports only internal/fundus and gonum. It has
// no knowledge of models, tensors or eyes.
package morphology
