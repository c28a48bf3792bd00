// Package registry owns model lifecycle: it loads each inference model at
// most once and hands out re-entrant handles.
//
// The registry is an explicit object built at startup and passed to the
// extractors. Loads for the same model collapse into one; inference calls
// are never serialised here.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/preprocess"
	"github.com/banshee-data/fundus.report/internal/monitoring"
)

// Model is an inference-ready handle. Infer must be safe for concurrent use:
// implementations keep no per-call mutable state.
type Model interface {
	ID() fundus.ModelID
	Infer(ctx context.Context, inputs ...*fundus.Tensor) ([]*fundus.Tensor, error)
	Close() error
}

// Loader builds a Model from its spec. Implementations return an error for a
// missing or corrupt file or a shape mismatch against spec.Architecture.
type Loader interface {
	Load(ctx context.Context, spec ModelSpec) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, spec ModelSpec) (Model, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, spec ModelSpec) (Model, error) { return f(ctx, spec) }

// ModelSpec is everything the registry knows about one model.
type ModelSpec struct {
	ID           fundus.ModelID
	Path         string
	Architecture Architecture
	// Preprocess is nil for models fed with feature vectors (fusion).
	Preprocess *preprocess.Spec
}

// DefaultSpecs builds specs for all four models from their weight paths.
func DefaultSpecs(paths map[fundus.ModelID]string) []ModelSpec {
	arch := Architectures()
	pre := preprocess.DefaultSpecs()
	ids := []fundus.ModelID{fundus.ModelHypertension, fundus.ModelCIMT, fundus.ModelVessel, fundus.ModelFusion}
	specs := make([]ModelSpec, 0, len(ids))
	for _, id := range ids {
		s := ModelSpec{ID: id, Path: paths[id], Architecture: arch[id]}
		if p, ok := pre[id]; ok {
			s.Preprocess = &p
		}
		specs = append(specs, s)
	}
	return specs
}

type entry struct {
	model Model
	err   error
}

// Registry caches loaded models by ID.
type Registry struct {
	loader Loader
	specs  map[fundus.ModelID]ModelSpec

	mu     sync.RWMutex
	loaded map[fundus.ModelID]entry
	group  singleflight.Group
}

// New validates the specs and resolves preprocessing records once.
func New(loader Loader, specs ...ModelSpec) (*Registry, error) {
	if loader == nil {
		return nil, errors.New("registry: nil loader")
	}
	r := &Registry{
		loader: loader,
		specs:  make(map[fundus.ModelID]ModelSpec, len(specs)),
		loaded: make(map[fundus.ModelID]entry),
	}
	for _, s := range specs {
		if s.ID == "" {
			return nil, errors.New("registry: model spec without id")
		}
		if _, dup := r.specs[s.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate model spec %q", s.ID)
		}
		if s.Architecture.Model != s.ID {
			return nil, fmt.Errorf("registry: spec %q declares architecture for %q", s.ID, s.Architecture.Model)
		}
		if s.Preprocess != nil {
			if err := s.Preprocess.Validate(); err != nil {
				return nil, fmt.Errorf("registry: %w", err)
			}
			if len(s.Architecture.Inputs) == 0 || !s.Architecture.Inputs[0].Matches(s.Preprocess.Shape()) {
				return nil, fmt.Errorf("registry: %s preprocessing shape %v disagrees with declared input", s.ID, s.Preprocess.Shape())
			}
		}
		r.specs[s.ID] = s
	}
	return r, nil
}

// Spec returns the registered spec for id.
func (r *Registry) Spec(id fundus.ModelID) (ModelSpec, bool) {
	s, ok := r.specs[id]
	return s, ok
}

// Preprocessing returns the tagged preprocessing record for id.
func (r *Registry) Preprocessing(id fundus.ModelID) (preprocess.Spec, error) {
	s, ok := r.specs[id]
	if !ok {
		return preprocess.Spec{}, fmt.Errorf("registry: unknown model %q", id)
	}
	if s.Preprocess == nil {
		return preprocess.Spec{}, fmt.Errorf("registry: model %q has no image preprocessing", id)
	}
	return *s.Preprocess, nil
}

// Get returns the cached handle for id, loading it on first use. A failed
// load is cached and returned on every later call.
func (r *Registry) Get(ctx context.Context, id fundus.ModelID) (Model, error) {
	r.mu.RLock()
	e, ok := r.loaded[id]
	r.mu.RUnlock()
	if ok {
		return e.model, e.err
	}

	spec, ok := r.specs[id]
	if !ok {
		return nil, &fundus.ModelLoadError{Model: id, Err: errors.New("model not registered")}
	}

	v, _, _ := r.group.Do(string(id), func() (interface{}, error) {
		r.mu.RLock()
		e, ok := r.loaded[id]
		r.mu.RUnlock()
		if ok {
			return e, nil
		}
		// A cancelled request must not poison the cache for everyone else.
		e = r.load(context.WithoutCancel(ctx), spec)
		r.mu.Lock()
		r.loaded[id] = e
		r.mu.Unlock()
		return e, nil
	})
	e = v.(entry)
	return e.model, e.err
}

func (r *Registry) load(ctx context.Context, spec ModelSpec) entry {
	monitoring.Logf("loading model %s from %s", spec.ID, spec.Path)
	m, err := r.loader.Load(ctx, spec)
	if err != nil {
		var mle *fundus.ModelLoadError
		if !errors.As(err, &mle) {
			err = &fundus.ModelLoadError{Model: spec.ID, Path: spec.Path, Err: err}
		}
		monitoring.Logf("model %s failed to load: %v", spec.ID, err)
		return entry{err: err}
	}
	if m == nil {
		return entry{err: &fundus.ModelLoadError{Model: spec.ID, Path: spec.Path, Err: errors.New("loader returned nil model")}}
	}
	monitoring.Logf("model %s loaded", spec.ID)
	return entry{model: m}
}

// Preload loads every listed model (all registered models when ids is empty)
// and returns the first failure. Intended for startup, where any error is fatal.
func (r *Registry) Preload(ctx context.Context, ids ...fundus.ModelID) error {
	if len(ids) == 0 {
		ids = r.IDs()
	}
	for _, id := range ids {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// IDs lists registered model IDs in sorted order.
func (r *Registry) IDs() []fundus.ModelID {
	ids := make([]fundus.ModelID, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Loaded lists the models that loaded successfully, sorted.
func (r *Registry) Loaded() []fundus.ModelID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []fundus.ModelID
	for id, e := range r.loaded {
		if e.err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close releases every loaded model.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for id, e := range r.loaded {
		if e.model != nil {
			if err := e.model.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", id, err))
			}
		}
		delete(r.loaded, id)
	}
	return errors.Join(errs...)
}
