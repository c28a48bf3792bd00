// Package registrytest provides deterministic stand-in models and loaders for
// tests. The models are cheap functions of their inputs, so pipeline
// properties (symmetry, idempotence, shape checks) can be exercised without
// weight files.
package registrytest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/registry"
)

// Model is a fake registry.Model backed by a function.
type Model struct {
	Model  fundus.ModelID
	Fn     func(inputs []*fundus.Tensor) ([]*fundus.Tensor, error)
	calls  atomic.Int64
	closed atomic.Bool
}

func (m *Model) ID() fundus.ModelID { return m.Model }

func (m *Model) Infer(ctx context.Context, inputs ...*fundus.Tensor) ([]*fundus.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	return m.Fn(inputs)
}

func (m *Model) Close() error {
	m.closed.Store(true)
	return nil
}

// Calls returns how many times Infer ran.
func (m *Model) Calls() int64 { return m.calls.Load() }

// Closed reports whether Close was called.
func (m *Model) Closed() bool { return m.closed.Load() }

// Loader hands out preconfigured models and counts loads per model.
type Loader struct {
	Models map[fundus.ModelID]registry.Model
	Errs   map[fundus.ModelID]error
	Delay  time.Duration

	mu    sync.Mutex
	loads map[fundus.ModelID]int
}

// Load implements registry.Loader.
func (l *Loader) Load(ctx context.Context, spec registry.ModelSpec) (registry.Model, error) {
	l.mu.Lock()
	if l.loads == nil {
		l.loads = make(map[fundus.ModelID]int)
	}
	l.loads[spec.ID]++
	l.mu.Unlock()

	if l.Delay > 0 {
		time.Sleep(l.Delay)
	}
	if err := l.Errs[spec.ID]; err != nil {
		return nil, err
	}
	m, ok := l.Models[spec.ID]
	if !ok {
		return nil, errors.New("weight file not found")
	}
	return m, nil
}

// Loads returns how many times id was loaded.
func (l *Loader) Loads(id fundus.ModelID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[id]
}

// Options tune the stand-in models.
type Options struct {
	// HTNEmbeddingDim overrides the embedding length (default 1024).
	HTNEmbeddingDim int
	// VesselBias shifts every mask logit; large negative values produce an
	// empty vessel mask.
	VesselBias float64
}

// NewLoader returns a loader serving all four stand-in models.
func NewLoader(opts Options) *Loader {
	return &Loader{Models: map[fundus.ModelID]registry.Model{
		fundus.ModelHypertension: NewHypertensionModel(opts.HTNEmbeddingDim),
		fundus.ModelCIMT:         NewCIMTModel(),
		fundus.ModelVessel:       NewVesselModel(opts.VesselBias),
		fundus.ModelFusion:       NewFusionModel(),
	}}
}

// NewRegistry builds a registry over NewLoader(opts) with the default specs.
func NewRegistry(opts Options) (*registry.Registry, *Loader, error) {
	loader := NewLoader(opts)
	reg, err := registry.New(loader, registry.DefaultSpecs(nil)...)
	if err != nil {
		return nil, nil, err
	}
	return reg, loader, nil
}

func channelMeans(t *fundus.Tensor) [3]float64 {
	var out [3]float64
	plane := len(t.Data) / 3
	if plane == 0 {
		return out
	}
	for c := 0; c < 3; c++ {
		var sum float64
		for _, v := range t.Data[c*plane : (c+1)*plane] {
			sum += float64(v)
		}
		out[c] = sum / float64(plane)
	}
	return out
}

func tensor(shape []int64, data []float32) *fundus.Tensor {
	return &fundus.Tensor{Shape: shape, Data: data}
}

// NewHypertensionModel returns a model whose logit and embedding are smooth
// functions of the input channel means.
func NewHypertensionModel(embeddingDim int) *Model {
	if embeddingDim == 0 {
		embeddingDim = fundus.HTNEmbeddingDim
	}
	return &Model{Model: fundus.ModelHypertension, Fn: func(in []*fundus.Tensor) ([]*fundus.Tensor, error) {
		if len(in) != 1 {
			return nil, fmt.Errorf("htn: want 1 input, got %d", len(in))
		}
		m := channelMeans(in[0])
		logit := float32(0.8*m[0] - 0.3*m[1] + 0.1*m[2])
		emb := make([]float32, embeddingDim)
		for i := range emb {
			c := i % 3
			emb[i] = float32(math.Sin(float64(i+1)*0.01 + m[c]))
		}
		return []*fundus.Tensor{
			tensor([]int64{1, 1}, []float32{logit}),
			tensor([]int64{1, int64(embeddingDim)}, emb),
		}, nil
	}}
}

// NewCIMTModel returns an order-aware bilateral model: left and right enter
// with different weights.
func NewCIMTModel() *Model {
	return &Model{Model: fundus.ModelCIMT, Fn: func(in []*fundus.Tensor) ([]*fundus.Tensor, error) {
		if len(in) != 3 {
			return nil, fmt.Errorf("cimt: want 3 inputs, got %d", len(in))
		}
		l, r := channelMeans(in[0]), channelMeans(in[1])
		clin := in[2].Data
		pred := float32(0.75 + 0.05*l[0] - 0.02*r[0] + 0.1*float64(clin[0]) + 0.03*float64(clin[1]))
		emb := make([]float32, fundus.CIMTEmbeddingDim)
		for i := range emb {
			emb[i] = float32(math.Cos(float64(i)*0.05+l[i%3]) + 0.5*r[(i+1)%3] + float64(clin[0]))
		}
		return []*fundus.Tensor{
			tensor([]int64{1, 1}, []float32{pred}),
			tensor([]int64{1, fundus.CIMTEmbeddingDim}, emb),
		}, nil
	}}
}

// NewVesselModel treats dark green pixels as vessels, which is how vessels
// appear in a fundus photograph.
func NewVesselModel(bias float64) *Model {
	return &Model{Model: fundus.ModelVessel, Fn: func(in []*fundus.Tensor) ([]*fundus.Tensor, error) {
		if len(in) != 1 {
			return nil, fmt.Errorf("vessel: want 1 input, got %d", len(in))
		}
		t := in[0]
		plane := len(t.Data) / 3
		logits := make([]float32, plane)
		green := t.Data[plane : 2*plane]
		for i, g := range green {
			logits[i] = float32(10*(0.45-float64(g)) + bias)
		}
		m := channelMeans(t)
		feats := make([]float32, fundus.VesselLearnedDim)
		for i := range feats {
			feats[i] = float32(m[i%3]*float64(i%7+1)) / 7
		}
		h, w := t.Shape[2], t.Shape[3]
		return []*fundus.Tensor{
			tensor([]int64{1, 1, h, w}, logits),
			tensor([]int64{1, fundus.VesselLearnedDim}, feats),
		}, nil
	}}
}

// NewFusionModel returns a linear classifier with fixed small weights.
func NewFusionModel() *Model {
	return &Model{Model: fundus.ModelFusion, Fn: func(in []*fundus.Tensor) ([]*fundus.Tensor, error) {
		if len(in) != 1 {
			return nil, fmt.Errorf("fusion: want 1 input, got %d", len(in))
		}
		var logit float64
		for i, v := range in[0].Data {
			logit += float64(v) * 0.001 * math.Sin(float64(i))
		}
		return []*fundus.Tensor{tensor([]int64{1, 1}, []float32{float32(logit)})}, nil
	}}
}
