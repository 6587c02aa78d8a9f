package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/harun/opsframe/pkg/action"
	"github.com/harun/opsframe/pkg/tool"
	"github.com/rs/zerolog"
)

// Env is what a Factory may use to build its tool.
type Env struct {
	Logger   zerolog.Logger
	Services action.Services
}

// Factory builds a tool from its (possibly on-disk) manifest.
type Factory func(manifest tool.Manifest, env Env) (tool.Tool, error)

// Plugin is a compiled-in tool implementation. Manifest is the default
// manifest used when the plugin is registered as a builtin.
type Plugin struct {
	Name     string
	Manifest tool.Manifest
	New      Factory
}

var (
	catalogMu sync.RWMutex
	catalog   = map[string]Plugin{}
)

// Provide adds p to the process-wide catalog. It is meant to be called from
// init functions and panics on an invalid or duplicate plugin.
func Provide(p Plugin) {
	if p.Name == "" {
		panic("registry: Provide with empty plugin name")
	}
	if p.New == nil {
		panic(fmt.Sprintf("registry: Provide %s with nil factory", p.Name))
	}

	catalogMu.Lock()
	defer catalogMu.Unlock()
	if _, dup := catalog[p.Name]; dup {
		panic(fmt.Sprintf("registry: Provide called twice for %s", p.Name))
	}
	catalog[p.Name] = p
}

// Catalog returns the provided plugins sorted by name.
func Catalog() []Plugin {
	catalogMu.RLock()
	defer catalogMu.RUnlock()

	out := make([]Plugin, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
