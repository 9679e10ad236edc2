package agent

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Factory builds a Client from the transport's config map.
type Factory func(config map[string]string) (Client, error)

var registry = struct {
	sync.RWMutex
	factories map[string]Factory
}{factories: make(map[string]Factory)}

// Register installs a transport factory under its name. Adapter packages
// call this from init, so a duplicate name is a programming error.
func Register(name string, factory Factory) {
	registry.Lock()
	defer registry.Unlock()

	if _, taken := registry.factories[name]; taken {
		panic(fmt.Sprintf("agent: transport %q registered twice", name))
	}
	registry.factories[name] = factory
}

// New builds the named transport's Client. An unknown name lists the
// registered transports in the error, since it is almost always a config
// typo.
func New(name string, config map[string]string) (Client, error) {
	registry.RLock()
	factory, ok := registry.factories[name]
	registry.RUnlock()

	if !ok {
		return nil, fmt.Errorf("agent: unknown transport %q (registered: %s)",
			name, strings.Join(Available(), ", "))
	}
	return factory(config)
}

// Available returns the registered transport names, sorted.
func Available() []string {
	registry.RLock()
	defer registry.RUnlock()

	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
