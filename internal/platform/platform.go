// Package platform assembles the registry, permission engine, approval
// workflow, bus and audit log from a config file into one runtime.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/harun/opsframe/internal/config"
	"github.com/harun/opsframe/internal/metrics"
	"github.com/harun/opsframe/internal/tracing"
	"github.com/harun/opsframe/pkg/action"
	"github.com/harun/opsframe/pkg/audit"
	"github.com/harun/opsframe/pkg/bus"
	"github.com/harun/opsframe/pkg/rbac"
	"github.com/harun/opsframe/pkg/registry"
	"github.com/harun/opsframe/pkg/tool"
	"github.com/rs/zerolog"

	// Sample tools register themselves with the catalog.
	_ "github.com/harun/opsframe/internal/builtin"
)

// ErrNotReversible is returned by Rollback for tools that are not actions.
var ErrNotReversible = errors.New("tool does not support rollback")

// Option configures a Platform.
type Option func(*options)

type options struct {
	plugins []registry.Plugin
}

// WithPlugins replaces the process-wide plugin catalog.
func WithPlugins(plugins ...registry.Plugin) Option {
	return func(o *options) {
		o.plugins = plugins
	}
}

// Platform is the assembled runtime.
type Platform struct {
	config *config.Config
	logger zerolog.Logger

	audit     *audit.Log
	retention *audit.Retention
	bus       *bus.Bus
	history   action.HistoryStore
	registry  *registry.Registry
	checker   *rbac.Checker
	metrics   *metrics.Metrics
	watcher   *registry.Watcher

	tracingEnabled bool

	closeOnce sync.Once
	closeErr  error
}

// New builds every component in dependency order and discovers tools.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Platform, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	p := &Platform{
		config: cfg,
		logger: logger.With().Str("component", "platform").Logger(),
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			p.tracingEnabled = true
		}
	}

	if err := p.initialize(ctx, o, logger); err != nil {
		_ = p.Close(context.Background())
		return nil, err
	}

	p.logger.Info().
		Int("tools", p.registry.Count()).
		Str("history", cfg.History.Backend).
		Bool("metrics", p.metrics != nil).
		Msg("Platform initialized")
	return p, nil
}

func (p *Platform) initialize(ctx context.Context, o *options, logger zerolog.Logger) error {
	cfg := p.config

	var err error
	p.audit, err = audit.Open(cfg.Audit.Path)
	if err != nil {
		return err
	}
	if cfg.Audit.RetentionDays > 0 {
		p.retention, err = audit.NewRetention(p.audit, cfg.Audit.RetentionDays, cfg.Audit.PurgeSchedule, logger)
		if err != nil {
			return err
		}
	}

	if cfg.Metrics.Enabled {
		p.metrics = metrics.NewMetrics(cfg.Metrics.Namespace)
	}

	p.bus = bus.New(
		bus.WithHistorySize(cfg.Bus.HistorySize),
		bus.WithQueueSize(cfg.Bus.QueueSize),
		bus.WithLogger(logger),
	)

	switch cfg.History.Backend {
	case config.HistorySQLite:
		p.history, err = action.OpenSQLiteHistory(cfg.History.Path)
		if err != nil {
			return err
		}
	default:
		p.history = action.NewMemoryHistory()
	}

	services := action.Services{
		Approvals:       p.bus,
		ApprovalTimeout: cfg.Approvals.Timeout(),
		Auditor:         p.audit,
		History:         p.history,
	}
	regCfg := registry.Config{
		Dirs:    cfg.Tools.Dirs,
		Builtin: cfg.Tools.Builtin,
		Plugins: o.plugins,
		Auditor: p.audit,
		Logger:  logger,
	}
	// A nil *Metrics must not end up inside a non-nil interface.
	if p.metrics != nil {
		services.Observer = p.metrics
		regCfg.Observer = p.metrics
	}
	regCfg.Env = registry.Env{Logger: logger, Services: services}
	p.registry = registry.New(regCfg)

	if _, err := p.registry.Discover(ctx); err != nil {
		return fmt.Errorf("tool discovery failed: %w", err)
	}

	matrix := rbac.EmptyMatrix()
	if cfg.Permissions.MatrixPath != "" {
		matrix, err = rbac.LoadMatrix(cfg.Permissions.MatrixPath, logger)
		if err != nil {
			return err
		}
	}

	recorders := fanout{&accessRecorder{log: p.audit, logger: p.logger}}
	if p.metrics != nil {
		recorders = append(recorders, p.metrics)
	}
	p.checker = rbac.NewChecker(matrix, p.registry,
		rbac.WithRecorder(recorders),
		rbac.WithLogger(logger),
	)
	return nil
}

// Start runs the background services: the retention schedule and, when
// configured, the tool directory watcher.
func (p *Platform) Start() error {
	if p.retention != nil {
		p.retention.Start()
	}
	if p.config.Tools.Watch && p.watcher == nil {
		w, err := p.registry.Watch(registry.DefaultDebounce)
		if err != nil {
			return fmt.Errorf("failed to watch tool directories: %w", err)
		}
		p.watcher = w
	}
	return nil
}

// Close stops background services and releases files, in reverse order
// of construction. It is safe on a partially built platform and after a
// previous Close.
func (p *Platform) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = p.close(ctx)
	})
	return p.closeErr
}

func (p *Platform) close(ctx context.Context) error {
	var errs []error

	if p.watcher != nil {
		errs = append(errs, p.watcher.Stop())
	}
	if p.retention != nil {
		errs = append(errs, p.retention.Stop(ctx))
	}
	if p.bus != nil {
		p.bus.Close()
	}
	if c, ok := p.history.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if p.audit != nil {
		errs = append(errs, p.audit.Close())
	}
	if p.tracingEnabled {
		errs = append(errs, tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// ContextFor builds an execution context whose permissions are the role's
// effective permissions in domain.
func (p *Platform) ContextFor(role, domain, missionID string) (*tool.ExecutionContext, error) {
	perms, err := p.checker.GetPermissions(role, domain)
	if err != nil {
		return nil, err
	}
	return &tool.ExecutionContext{
		MissionID:   missionID,
		RoleID:      role,
		Domain:      domain,
		Permissions: perms.Strings(),
	}, nil
}

// Execute runs a tool through the registry pipeline.
func (p *Platform) Execute(ctx context.Context, name string, params map[string]any, execCtx *tool.ExecutionContext) tool.Result {
	return p.registry.Execute(ctx, name, params, execCtx)
}

// CheckAccess asks the permission engine whether a role may invoke a tool.
// The decision is audited.
func (p *Platform) CheckAccess(req rbac.AccessRequest) rbac.Decision {
	return p.checker.Authorize(req)
}

// Tools lists manifests, narrowed to a domain and role when either is set.
func (p *Platform) Tools(domain, role string) []tool.Manifest {
	if domain != "" {
		return p.registry.ForDomain(domain, role)
	}
	all := p.registry.List()
	if role == "" {
		return all
	}
	out := all[:0]
	for _, m := range all {
		if m.AllowsRole(role) {
			out = append(out, m)
		}
	}
	return out
}

// Manifest returns the manifest of a registered tool.
func (p *Platform) Manifest(name string) (tool.Manifest, bool) {
	return p.registry.Manifest(name)
}

// Rollback reverses a prior execution of an action tool.
func (p *Platform) Rollback(ctx context.Context, toolName, executionID string) (bool, error) {
	t, ok := p.registry.Get(toolName)
	if !ok {
		return false, fmt.Errorf("tool not found: %s", toolName)
	}
	runner, ok := t.(*action.Runner)
	if !ok {
		return false, fmt.Errorf("%s: %w", toolName, ErrNotReversible)
	}
	return runner.Rollback(ctx, executionID)
}

// History lists recorded action executions, newest first.
func (p *Platform) History(ctx context.Context, actionName string, limit int) ([]action.HistoryEntry, error) {
	return p.history.List(ctx, actionName, limit)
}

// Config returns the configuration the platform was built from.
func (p *Platform) Config() *config.Config { return p.config }

// Registry returns the tool registry.
func (p *Platform) Registry() *registry.Registry { return p.registry }

// Checker returns the permission engine.
func (p *Platform) Checker() *rbac.Checker { return p.checker }

// Bus returns the message bus carrying approval requests.
func (p *Platform) Bus() *bus.Bus { return p.bus }

// Audit returns the audit log.
func (p *Platform) Audit() *audit.Log { return p.audit }

// Metrics returns the metrics set, or nil when metrics are disabled.
func (p *Platform) Metrics() *metrics.Metrics { return p.metrics }
