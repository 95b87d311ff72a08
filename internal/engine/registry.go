package engine

import (
	"fmt"
	"sync"

	"github.com/audioscribe/pkg/logger"
)

// Factory builds an engine for one model identifier.
type Factory func(model string) (Engine, error)

// Registry holds one engine per model so concurrent requests for different
// models never race on a shared slot. Engines load lazily on first use and
// stay resident until evicted.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	engines map[string]Engine
}

// NewRegistry creates an empty registry using factory for loads.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		engines: make(map[string]Engine),
	}
}

// Get returns the engine for model, loading it on first use.
func (r *Registry) Get(model string) (Engine, error) {
	if model == "" {
		model = DefaultModel
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if eng, ok := r.engines[model]; ok {
		return eng, nil
	}

	eng, err := r.factory(model)
	if err != nil {
		return nil, fmt.Errorf("load engine %q: %w", model, err)
	}

	r.engines[model] = eng
	logger.Infof("engine loaded: %s", model)
	return eng, nil
}

// Evict drops the engine for model, if loaded. The next Get reloads it.
func (r *Registry) Evict(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.engines[model]; ok {
		delete(r.engines, model)
		logger.Infof("engine evicted: %s", model)
	}
}

// Loaded returns the model identifiers with resident engines.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	models := make([]string, 0, len(r.engines))
	for model := range r.engines {
		models = append(models, model)
	}
	return models
}
