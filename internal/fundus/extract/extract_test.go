package extract

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/registry"
	"github.com/banshee-data/fundus.report/internal/fundus/registry/registrytest"
	"github.com/banshee-data/fundus.report/internal/testutil"
)

var (
	leftEye  = testutil.SyntheticFundus(testutil.FundusOptions{Vessels: 3, Phase: 0.2})
	rightEye = testutil.SyntheticFundus(testutil.FundusOptions{Vessels: 4, Phase: 1.7, Thin: true})
	patient  = fundus.ClinicalCovariates{Age: 58, Sex: fundus.SexFemale}
)

func newRegistry(t *testing.T, opts registrytest.Options) *registry.Registry {
	t.Helper()
	reg, _, err := registrytest.NewRegistry(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestInput_Validate(t *testing.T) {
	err := Input{}.Validate()
	assert.ErrorIs(t, err, fundus.ErrInvalidInput)

	bad := &fundus.Image{Width: 4, Height: 4, Channels: 1, Pix: make([]uint8, 16)}
	assert.ErrorIs(t, Input{Left: leftEye, Right: bad}.Validate(), fundus.ErrInvalidInput)
	assert.NoError(t, Input{Left: leftEye}.Validate())

	eyes := Input{Left: leftEye, Right: rightEye}.Eyes()
	require.Len(t, eyes, 2)
	assert.Equal(t, fundus.EyeLeft, eyes[0].Eye)
	assert.Equal(t, fundus.EyeRight, eyes[1].Eye)
}

func TestHypertension_LayoutAndSymmetry(t *testing.T) {
	ex, err := NewHypertensionExtractor(newRegistry(t, registrytest.Options{}))
	require.NoError(t, err)
	ctx := context.Background()

	lr, err := ex.Extract(ctx, Input{Left: leftEye, Right: rightEye})
	require.NoError(t, err)
	require.Equal(t, fundus.HTNDim, lr.Features.Len())
	assert.Equal(t, fundus.ModelHypertension, lr.Features.Source)
	prob := lr.Features.Values[0]
	assert.True(t, prob > 0 && prob < 1, "probability %v", prob)

	rl, err := ex.Extract(ctx, Input{Left: rightEye, Right: leftEye})
	require.NoError(t, err)
	if diff := cmp.Diff(lr.Features.Values, rl.Features.Values, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("eye swap changed hypertension features (-lr +rl):\n%s", diff)
	}

	single, err := ex.Extract(ctx, Input{Left: leftEye})
	require.NoError(t, err)
	direct, err := ex.ExtractEye(ctx, leftEye)
	require.NoError(t, err)
	assert.Equal(t, direct.Values, single.Features.Values)
}

func TestHypertension_ShortEmbeddingFailsBeforeAssembly(t *testing.T) {
	ex, err := NewHypertensionExtractor(newRegistry(t, registrytest.Options{HTNEmbeddingDim: 1023}))
	require.NoError(t, err)

	out, err := ex.Extract(context.Background(), Input{Left: leftEye})
	require.ErrorIs(t, err, fundus.ErrFeatureShape)
	assert.Nil(t, out)

	var fse *fundus.FeatureShapeError
	require.ErrorAs(t, err, &fse)
	assert.Equal(t, fundus.HTNEmbeddingDim, fse.Want)
	assert.Equal(t, 1023, fse.Got)
}

func TestCIMT_OrderAwareAndDuplicatesMissingEye(t *testing.T) {
	ex, err := NewCIMTExtractor(newRegistry(t, registrytest.Options{}))
	require.NoError(t, err)
	ctx := context.Background()

	lr, err := ex.Extract(ctx, Input{Left: leftEye, Right: rightEye, Covariates: patient})
	require.NoError(t, err)
	require.Equal(t, fundus.CIMTDim, lr.Features.Len())

	rl, err := ex.Extract(ctx, Input{Left: rightEye, Right: leftEye, Covariates: patient})
	require.NoError(t, err)
	assert.NotEqual(t, lr.Features.Values[0], rl.Features.Values[0], "bilateral model must be order-aware")

	single, err := ex.Extract(ctx, Input{Left: leftEye, Covariates: patient})
	require.NoError(t, err)
	dup, err := ex.Extract(ctx, Input{Left: leftEye, Right: leftEye, Covariates: patient})
	require.NoError(t, err)
	assert.Equal(t, dup.Features.Values, single.Features.Values)
}

func TestCIMT_RejectsBadCovariates(t *testing.T) {
	ex, err := NewCIMTExtractor(newRegistry(t, registrytest.Options{}))
	require.NoError(t, err)
	_, err = ex.Extract(context.Background(), Input{Left: leftEye, Covariates: fundus.ClinicalCovariates{Age: 0}})
	assert.ErrorIs(t, err, fundus.ErrInvalidInput)
}

func TestVessel_LayoutAndSymmetry(t *testing.T) {
	ex, err := NewVesselExtractor(newRegistry(t, registrytest.Options{}), nil)
	require.NoError(t, err)
	ctx := context.Background()

	lr, err := ex.Extract(ctx, Input{Left: leftEye, Right: rightEye})
	require.NoError(t, err)
	require.Equal(t, fundus.VesselDim, lr.Features.Len())
	require.Len(t, lr.Eyes, 2)
	assert.Empty(t, lr.Warnings)

	density := lr.Features.Values[fundus.VesselDescriptorBase]
	assert.Greater(t, density, 0.0)
	assert.Less(t, density, 1.0)
	for _, e := range lr.Eyes {
		assert.Greater(t, e.Analysis.Descriptors.ComponentCount, 0.0, "%s eye", e.Eye)
	}

	rl, err := ex.Extract(ctx, Input{Left: rightEye, Right: leftEye})
	require.NoError(t, err)
	if diff := cmp.Diff(lr.Features.Values, rl.Features.Values, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("eye swap changed vessel features (-lr +rl):\n%s", diff)
	}
}

func TestVessel_DegenerateMaskIsWarningNotFailure(t *testing.T) {
	ex, err := NewVesselExtractor(newRegistry(t, registrytest.Options{VesselBias: -100}), nil)
	require.NoError(t, err)

	out, err := ex.Extract(context.Background(), Input{Left: leftEye})
	require.NoError(t, err)
	require.Len(t, out.Warnings, 1)
	assert.ErrorIs(t, out.Warnings[0], fundus.ErrDegenerateMask)

	descriptors := out.Features.Values[fundus.VesselDescriptorBase:]
	require.Len(t, descriptors, fundus.VesselDescriptorDim)
	for i, v := range descriptors {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "descriptor %d = %v", i, v)
	}
	assert.Zero(t, descriptors[0])
}

func TestVessel_NonFiniteMaskLogitsAreShapeErrors(t *testing.T) {
	loader := registrytest.NewLoader(registrytest.Options{})
	vessel := registrytest.NewVesselModel(0)
	clean := vessel.Fn
	vessel.Fn = func(in []*fundus.Tensor) ([]*fundus.Tensor, error) {
		out, err := clean(in)
		if err != nil {
			return nil, err
		}
		out[0].Data[7] = float32(math.NaN())
		return out, nil
	}
	loader.Models[fundus.ModelVessel] = vessel
	reg, err := registry.New(loader, registry.DefaultSpecs(nil)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	ex, err := NewVesselExtractor(reg, nil)
	require.NoError(t, err)
	out, err := ex.Extract(context.Background(), Input{Left: leftEye})
	require.ErrorIs(t, err, fundus.ErrFeatureShape)
	assert.NotErrorIs(t, err, fundus.ErrInvalidInput)
	assert.Nil(t, out)

	var fse *fundus.FeatureShapeError
	require.ErrorAs(t, err, &fse)
	assert.Equal(t, "vessel mask logits", fse.Component)
}

func TestExtractors_PropagateCancellation(t *testing.T) {
	reg := newRegistry(t, registrytest.Options{})
	ex, err := NewHypertensionExtractor(reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ex.Extract(ctx, Input{Left: leftEye})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewExtractors_RequireRegistry(t *testing.T) {
	_, err := NewHypertensionExtractor(nil)
	assert.Error(t, err)
	_, err = NewCIMTExtractor(nil)
	assert.Error(t, err)
	_, err = NewVesselExtractor(nil, nil)
	assert.Error(t, err)
}
