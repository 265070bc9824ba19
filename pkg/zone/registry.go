package zone

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory creates a zone instance from provider-specific configuration.
type Factory func(name string, config map[string]string) (Zone, error)

// Registry manages provider factories and the configured zone instances.
// It resolves request zone names to handles.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory // provider type -> factory
	instances map[string]Zone    // zone name -> instance
	order     []string
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Zone),
		logger:    logger,
	}
}

// RegisterFactory registers a factory for a provider type.
func (r *Registry) RegisterFactory(typeName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = factory
}

// HasFactory reports whether a provider type is registered.
func (r *Registry) HasFactory(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typeName]
	return ok
}

// CreateInstance builds a zone with the named provider type and registers
// it under name.
func (r *Registry) CreateInstance(name, typeName string, config map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; exists {
		return fmt.Errorf("zone %q already registered", name)
	}

	factory, ok := r.factories[typeName]
	if !ok {
		return fmt.Errorf("unknown provider type: %s", typeName)
	}

	z, err := factory(name, config)
	if err != nil {
		return fmt.Errorf("creating zone %s: %w", name, err)
	}

	r.instances[name] = z
	r.order = append(r.order, name)

	r.logger.Info("registered zone",
		slog.String("zone", name),
		slog.String("type", typeName),
	)
	return nil
}

// Add registers an already constructed zone.
func (r *Registry) Add(z Zone) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[z.Name()]; exists {
		return fmt.Errorf("zone %q already registered", z.Name())
	}
	r.instances[z.Name()] = z
	r.order = append(r.order, z.Name())
	return nil
}

// Get returns the zone registered under name.
func (r *Registry) Get(name string) (Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.instances[name]
	return z, ok
}

// Resolve returns the zone registered under name or ErrUnknownZone.
func (r *Registry) Resolve(name string) (Zone, error) {
	z, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	return z, nil
}

// All returns every zone in registration order.
func (r *Registry) All() []Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zones := make([]Zone, 0, len(r.order))
	for _, name := range r.order {
		if z, ok := r.instances[name]; ok {
			zones = append(zones, z)
		}
	}
	return zones
}

// Names returns the registered zone names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered zones.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}
