package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harun/opsframe/pkg/tool"
)

// ManifestFile is the file name Discover looks for in each unit directory.
const ManifestFile = "tool.json"

// Discover loads builtin plugins (when enabled) and every unit found under
// the configured directories. A source that was already loaded is skipped,
// so repeated calls only pick up new units. Units that fail to load are
// logged and skipped. It returns the number of tools newly registered.
func (r *Registry) Discover(ctx context.Context) (int, error) {
	loaded := 0

	if r.builtin {
		for _, name := range r.pluginNames() {
			if err := ctx.Err(); err != nil {
				return loaded, err
			}
			p := r.plugins[name]
			if p.Manifest.Name == "" {
				continue
			}
			source := "builtin:" + p.Name
			if r.hasSource(source) {
				continue
			}
			if err := r.load(p, p.Manifest, source); err != nil {
				r.logger.Warn().Err(err).Str("plugin", p.Name).Msg("Failed to load builtin tool")
				continue
			}
			loaded++
		}
	}

	for _, dir := range r.dirs {
		if dir == "" {
			continue
		}
		units, err := r.scanDirectory(dir)
		if err != nil {
			r.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to scan tool directory")
			continue
		}
		for _, unit := range units {
			if err := ctx.Err(); err != nil {
				return loaded, err
			}
			if r.hasSource(unit) {
				continue
			}
			if err := r.loadUnit(unit); err != nil {
				r.logger.Warn().Err(err).Str("dir", unit).Msg("Failed to load tool")
				continue
			}
			loaded++
		}
	}

	r.logger.Info().Int("loaded", loaded).Int("total", r.Count()).Msg("Tool discovery completed")
	return loaded, nil
}

// scanDirectory returns the absolute paths of unit directories under dir
// that contain a manifest. Names starting with "_" or "." are private.
func (r *Registry) scanDirectory(dir string) ([]string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug().Str("dir", abs).Msg("Directory does not exist, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", abs, err)
	}

	var units []string
	for _, entry := range entries {
		if !entry.IsDir() || isPrivate(entry.Name()) {
			continue
		}
		unit := filepath.Join(abs, entry.Name())
		if _, err := os.Stat(filepath.Join(unit, ManifestFile)); err != nil {
			if !os.IsNotExist(err) {
				r.logger.Warn().Err(err).Str("dir", unit).Msg("Failed to check for tool.json")
			}
			continue
		}
		units = append(units, unit)
	}
	return units, nil
}

func (r *Registry) loadUnit(unit string) error {
	manifest, err := tool.LoadManifest(filepath.Join(unit, ManifestFile))
	if err != nil {
		return err
	}

	impl := manifest.ImplementationName()
	p, ok := r.plugins[impl]
	if !ok {
		return fmt.Errorf("no implementation %q for tool %s", impl, manifest.Name)
	}
	return r.load(p, manifest, unit)
}

func (r *Registry) load(p Plugin, manifest tool.Manifest, source string) error {
	env := r.env
	env.Logger = r.logger.With().Str("tool", manifest.Name).Logger()

	t, err := p.New(manifest, env)
	if err != nil {
		return fmt.Errorf("failed to build tool %s: %w", manifest.Name, err)
	}
	if err := r.register(t, source); err != nil {
		return err
	}
	r.logger.Debug().Str("tool", manifest.Name).Str("source", source).Msg("Loaded tool")
	return nil
}

func (r *Registry) hasSource(source string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[source]
	return ok
}

func (r *Registry) pluginNames() []string {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isPrivate(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}
