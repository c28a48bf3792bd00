// Package fundus holds the domain model shared by every stage of the retinal
// fusion feature pipeline.
//
// Responsibilities: request inputs (Image, ClinicalCovariates), the fixed
// feature layout (model IDs, sub-vector lengths and offsets), the dense
// Tensor exchanged with inference models, and the error taxonomy.
// Key types: Image, ClinicalCovariates, SubFeatureVector, FusionFeatureVector.
//
// Dependency rule: this package imports nothing from internal/fundus/...;
// every stage package depends on it, never the reverse.
//
// Layout of the assembled vector (canonical order, never derived from model
// output shapes):
//
//	[   0, 1025)  hypertension  = 1 probability + 1024 embedding
//	[1025, 1154)  cimt          = 1 regression (mm) + 128 embedding
//	[1154, 1425)  vessel        = 256 learned + 15 handcrafted descriptors
package fundus
