package observability

import (
	"fmt"
	"log/slog"
	"sync"
)

// The registry maps names to observers so configuration can select one by
// string (the store package's Config.Observer). "noop" and "slog" are
// pre-registered.
var registry = struct {
	sync.RWMutex
	byName map[string]Observer
}{
	byName: map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	},
}

// GetObserver returns the observer registered under name.
func GetObserver(name string) (Observer, error) {
	registry.RLock()
	defer registry.RUnlock()

	obs, ok := registry.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// RegisterObserver adds or replaces a named observer.
func RegisterObserver(name string, observer Observer) {
	registry.Lock()
	defer registry.Unlock()

	registry.byName[name] = observer
}
