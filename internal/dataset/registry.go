package dataset

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Dataset)
)

// Register adds a dataset to the registry. It panics if a dataset with
// the same name is already registered; registration happens in init()
// functions where a duplicate is a programming error.
func Register(d Dataset) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := d.Name()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("dataset %q registered twice", name))
	}
	registry[name] = d
}

// Get returns the dataset registered under name.
func Get(name string) (Dataset, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown dataset: %s (available: %v)", name, names())
	}
	return d, nil
}

// Names returns all registered dataset names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return names()
}

func names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
