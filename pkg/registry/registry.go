package registry

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/harun/opsframe/pkg/audit"
	"github.com/harun/opsframe/pkg/tool"
	"github.com/rs/zerolog"
)

// Auditor records audit events. *audit.Log implements it.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event) error
}

// Observer receives execution outcomes, e.g. for metrics.
type Observer interface {
	ToolExecuted(tool string, category tool.Category, success bool, duration time.Duration)
}

// Config configures a Registry.
type Config struct {
	// Dirs are scanned by Discover for <dir>/<unit>/tool.json.
	Dirs []string
	// Builtin registers every catalog plugin with its default manifest.
	Builtin bool
	// Plugins overrides the process-wide catalog.
	Plugins []Plugin

	Env      Env
	Auditor  Auditor
	Observer Observer
	Logger   zerolog.Logger
}

type entry struct {
	tool     tool.Tool
	manifest tool.Manifest
	input    *tool.Schema
	output   *tool.Schema
	source   string
}

// Registry indexes tools by name and runs the execution pipeline.
type Registry struct {
	dirs     []string
	builtin  bool
	plugins  map[string]Plugin
	env      Env
	auditor  Auditor
	observer Observer
	logger   zerolog.Logger

	mu    sync.RWMutex
	tools map[string]*entry
	// sources maps a loaded source identity to the tool it produced.
	sources map[string]string
}

// New creates a registry. It does not discover anything until Discover.
func New(cfg Config) *Registry {
	plugins := cfg.Plugins
	if plugins == nil {
		plugins = Catalog()
	}
	byName := make(map[string]Plugin, len(plugins))
	for _, p := range plugins {
		byName[p.Name] = p
	}

	env := cfg.Env
	if env.Services.Auditor == nil && cfg.Auditor != nil {
		env.Services.Auditor = cfg.Auditor
	}

	return &Registry{
		dirs:     append([]string(nil), cfg.Dirs...),
		builtin:  cfg.Builtin,
		plugins:  byName,
		env:      env,
		auditor:  cfg.Auditor,
		observer: cfg.Observer,
		logger:   cfg.Logger.With().Str("component", "registry").Logger(),
		tools:    make(map[string]*entry),
		sources:  make(map[string]string),
	}
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t tool.Tool) error {
	return r.register(t, "")
}

func (r *Registry) register(t tool.Tool, source string) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	manifest := t.Manifest()
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("invalid manifest for %q: %w", manifest.Name, err)
	}

	e := &entry{
		tool:     t,
		manifest: manifest,
		input:    tool.CompileSchema(manifest.InputSchema),
		output:   tool.CompileSchema(manifest.OutputSchema),
		source:   source,
	}
	if degraded, err := e.input.Degraded(); degraded {
		r.logger.Warn().Err(err).Str("tool", manifest.Name).Msg("Input schema not compilable, using basic validation")
	}

	r.mu.Lock()
	previous, replaced := r.tools[manifest.Name]
	r.tools[manifest.Name] = e
	if replaced && previous.source != "" && previous.source != source {
		delete(r.sources, previous.source)
	}
	if source != "" {
		r.sources[source] = manifest.Name
	}
	r.mu.Unlock()

	if replaced {
		r.logger.Warn().
			Str("tool", manifest.Name).
			Str("previous_version", previous.manifest.Version).
			Str("version", manifest.Version).
			Msg("Tool already registered, replacing")
	} else {
		r.logger.Info().
			Str("tool", manifest.Name).
			Str("version", manifest.Version).
			Strs("domains", manifest.Domains).
			Msg("Tool registered")
	}
	return nil
}

// Unregister removes a tool and forgets the source it was loaded from, so a
// later Discover loads it again. It reports whether the tool existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	e, ok := r.tools[name]
	if ok {
		delete(r.tools, name)
		if e.source != "" {
			delete(r.sources, e.source)
		}
	}
	r.mu.Unlock()

	if ok {
		r.logger.Info().Str("tool", name).Msg("Tool unregistered")
	}
	return ok
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Manifest returns the manifest registered under name.
func (r *Registry) Manifest(name string) (tool.Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return tool.Manifest{}, false
	}
	return e.manifest, true
}

// List returns every manifest sorted by name.
func (r *Registry) List() []tool.Manifest {
	return r.filter(func(tool.Manifest) bool { return true })
}

// ForDomain returns manifests available in domain and, when role is not
// empty, usable by role.
func (r *Registry) ForDomain(domain, role string) []tool.Manifest {
	return r.filter(func(m tool.Manifest) bool {
		if !slices.Contains(m.Domains, domain) {
			return false
		}
		return role == "" || m.AllowsRole(role)
	})
}

func (r *Registry) filter(keep func(tool.Manifest) bool) []tool.Manifest {
	r.mu.RLock()
	out := make([]tool.Manifest, 0, len(r.tools))
	for _, e := range r.tools {
		if keep(e.manifest) {
			out = append(out, e.manifest)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Statistics summarizes the registry.
type Statistics struct {
	Total    int            `json:"total"`
	ByDomain map[string]int `json:"by_domain"`
	Actions  int            `json:"actions"`
}

// Statistics counts tools in total and per domain.
func (r *Registry) Statistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Statistics{Total: len(r.tools), ByDomain: map[string]int{}}
	for _, e := range r.tools {
		for _, domain := range e.manifest.Domains {
			stats.ByDomain[domain]++
		}
		if _, ok := e.tool.(tool.Budgeted); ok {
			stats.Actions++
		}
	}
	return stats
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}
