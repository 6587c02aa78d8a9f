package rbac

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/harun/opsframe/pkg/tool"
	"github.com/rs/zerolog"
)

// ErrRoleNotFound is returned when a role ID is not in the catalog.
var ErrRoleNotFound = errors.New("role not found")

// ManifestLookup resolves tool manifests by name. The plugin registry
// implements it.
type ManifestLookup interface {
	Manifest(name string) (tool.Manifest, bool)
}

// AccessRequest identifies a caller asking to invoke a tool.
type AccessRequest struct {
	Role      string
	Tool      string
	Domain    string
	MissionID string
	UserID    string
}

// Decision is the outcome of a tool access check.
type Decision struct {
	AccessRequest
	Allowed  bool
	Reason   string
	Category tool.Category
	Missing  []string
	Checked  []string
}

// Recorder receives every access decision, e.g. for auditing.
type Recorder interface {
	RecordAccess(decision Decision)
}

// Option configures a Checker.
type Option func(*Checker)

// WithRecorder registers a recorder for access decisions.
func WithRecorder(recorder Recorder) Option {
	return func(c *Checker) {
		c.recorder = recorder
	}
}

// WithLogger sets the checker's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithRoles replaces the built-in role catalog.
func WithRoles(roles map[string]Role) Option {
	return func(c *Checker) {
		c.roles = roles
	}
}

// Checker is the role-based permission engine. It is immutable after
// construction and safe for concurrent use without locking.
type Checker struct {
	roles     map[string]Role
	matrix    *Matrix
	manifests ManifestLookup
	recorder  Recorder
	logger    zerolog.Logger

	// resolved[domain][role] = base ∪ overlay, precomputed at construction
	resolved map[string]map[string]PermissionSet
}

// NewChecker builds a permission engine over matrix and manifests.
func NewChecker(matrix *Matrix, manifests ManifestLookup, opts ...Option) *Checker {
	if matrix == nil {
		matrix = EmptyMatrix()
	}

	c := &Checker{
		roles:     DefaultRoles(),
		matrix:    matrix,
		manifests: manifests,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "rbac").Logger()

	roles := make(map[string]Role, len(c.roles)+len(matrix.Roles()))
	for id, role := range c.roles {
		roles[id] = role
	}
	for id, role := range matrix.Roles() {
		if _, exists := roles[id]; exists {
			c.logger.Info().Str("role", id).Msg("Role redefined by permission matrix")
		}
		roles[id] = role
	}
	c.roles = roles

	c.resolved = make(map[string]map[string]PermissionSet, len(matrix.overlays))
	for domain, byRole := range matrix.overlays {
		c.resolved[domain] = make(map[string]PermissionSet, len(byRole))
		for roleID, overlay := range byRole {
			role, ok := c.roles[roleID]
			if !ok {
				c.logger.Warn().
					Str("domain", domain).
					Str("role", roleID).
					Msg("Matrix overlay references unknown role, skipping")
				continue
			}
			c.resolved[domain][roleID] = role.Permissions.Union(overlay)
		}
	}

	c.logger.Info().
		Int("roles", len(c.roles)).
		Int("domains", len(c.resolved)).
		Msg("Permission engine initialized")

	return c
}

// Role returns the role with the given ID.
func (c *Checker) Role(id string) (Role, bool) {
	role, ok := c.roles[id]
	return role, ok
}

// Roles returns all roles ordered by descending level, then ID.
func (c *Checker) Roles() []Role {
	out := make([]Role, 0, len(c.roles))
	for _, role := range c.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetPermissions returns the role's effective permissions, optionally
// extended by the overlay for domain.
func (c *Checker) GetPermissions(roleID, domain string) (PermissionSet, error) {
	role, ok := c.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	if domain != "" {
		if set, ok := c.resolved[domain][roleID]; ok {
			return set, nil
		}
	}
	return role.Permissions, nil
}

// CheckPermission reports whether role holds permission, optionally within
// domain.
func (c *Checker) CheckPermission(roleID string, permission Permission, domain string) bool {
	set, err := c.GetPermissions(roleID, domain)
	if err != nil {
		return false
	}
	return set.Has(permission)
}

// CheckToolAccess decides whether role may invoke toolName, optionally
// within domain.
func (c *Checker) CheckToolAccess(roleID, toolName, domain string) Decision {
	return c.Authorize(AccessRequest{Role: roleID, Tool: toolName, Domain: domain})
}

// Authorize runs the access gates in order: tool override, manifest lookup,
// role list, domain list, required permissions. The first failing gate
// denies.
func (c *Checker) Authorize(req AccessRequest) Decision {
	decision := c.evaluate(req)

	level := zerolog.DebugLevel
	if !decision.Allowed {
		level = zerolog.WarnLevel
	}
	c.logger.WithLevel(level).
		Str("role", req.Role).
		Str("tool", req.Tool).
		Str("domain", req.Domain).
		Bool("allowed", decision.Allowed).
		Str("reason", decision.Reason).
		Msg("Tool access decision")

	if c.recorder != nil {
		c.recorder.RecordAccess(decision)
	}
	return decision
}

func (c *Checker) evaluate(req AccessRequest) Decision {
	deny := func(category tool.Category, reason string) Decision {
		return Decision{AccessRequest: req, Allowed: false, Reason: reason, Category: category}
	}

	if override, ok := c.matrix.Override(req.Tool); ok {
		if slices.Contains(override.BlockedRoles, req.Role) {
			reason := override.Reason
			if reason == "" {
				reason = fmt.Sprintf("role %s is blocked from tool %s", req.Role, req.Tool)
			}
			return deny(tool.CategoryPermissionDenied, reason)
		}
		if len(override.AllowedRoles) > 0 && !slices.Contains(override.AllowedRoles, req.Role) {
			reason := fmt.Sprintf("tool %s is restricted to roles: %s", req.Tool, strings.Join(override.AllowedRoles, ", "))
			if override.Reason != "" {
				reason = fmt.Sprintf("%s (%s)", reason, override.Reason)
			}
			return deny(tool.CategoryPermissionDenied, reason)
		}
	}

	if c.manifests == nil {
		return deny(tool.CategoryNotFound, fmt.Sprintf("tool not found: %s", req.Tool))
	}
	manifest, ok := c.manifests.Manifest(req.Tool)
	if !ok {
		return deny(tool.CategoryNotFound, fmt.Sprintf("tool not found: %s", req.Tool))
	}

	if !manifest.AllowsRole(req.Role) {
		return deny(tool.CategoryPermissionDenied, fmt.Sprintf("role %s is not allowed to use tool %s", req.Role, req.Tool))
	}

	if req.Domain != "" && !manifest.InDomain(req.Domain) {
		return deny(tool.CategoryPermissionDenied, fmt.Sprintf("tool %s is not available in domain %s", req.Tool, req.Domain))
	}

	granted, err := c.GetPermissions(req.Role, req.Domain)
	if err != nil {
		return deny(tool.CategoryNotFound, err.Error())
	}

	decision := Decision{
		AccessRequest: req,
		Checked:       append([]string(nil), manifest.RequiredPermissions...),
	}
	if missing := granted.Missing(manifest.RequiredPermissions); len(missing) > 0 {
		decision.Category = tool.CategoryPermissionDenied
		decision.Missing = missing
		decision.Reason = fmt.Sprintf("missing permissions: %s", strings.Join(missing, ", "))
		return decision
	}

	decision.Allowed = true
	decision.Reason = "access granted"
	return decision
}

// Escalation returns the escalation path for role. Callers act on it, e.g.
// by prompting a human; the checker never applies it.
func (c *Checker) Escalation(roleID string) (EscalationPath, bool) {
	return c.matrix.Escalation(roleID)
}
