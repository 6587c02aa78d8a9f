package rbac

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// MaxEscalationPermissions bounds the permissions a single escalation path
// may grant.
const MaxEscalationPermissions = 10

// ToolOverride adjusts access to one tool regardless of its manifest.
type ToolOverride struct {
	AllowedRoles []string `yaml:"allowed_roles" json:"allowed_roles"`
	BlockedRoles []string `yaml:"blocked_roles" json:"blocked_roles"`
	Reason       string   `yaml:"reason" json:"reason"`
}

// EscalationRule is the document form of an escalation path.
type EscalationRule struct {
	EscalateTo         string   `yaml:"escalate_to" json:"escalate_to"`
	AllowedPermissions []string `yaml:"allowed_permissions" json:"allowed_permissions"`
}

// RoleSpec declares an additional role in the matrix document.
type RoleSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Level       int      `yaml:"level" json:"level"`
	Permissions []string `yaml:"permissions" json:"permissions"`
	CanDelegate bool     `yaml:"can_delegate" json:"can_delegate"`
	CanApprove  bool     `yaml:"can_approve" json:"can_approve"`
	Description string   `yaml:"description" json:"description"`
}

// MatrixDocument is the on-disk permission matrix. YAML and JSON are both
// accepted since JSON is a subset of YAML.
type MatrixDocument struct {
	DomainRolePermissions map[string]map[string][]string `yaml:"domain_role_permissions" json:"domain_role_permissions"`
	ToolOverrides         map[string]ToolOverride        `yaml:"tool_overrides" json:"tool_overrides"`
	EscalationPaths       map[string]EscalationRule      `yaml:"escalation_paths" json:"escalation_paths"`
	Roles                 map[string]RoleSpec            `yaml:"roles" json:"roles"`
}

// EscalationPath is returned to callers that want to ask a human for more
// access. It is never applied automatically.
type EscalationPath struct {
	From        string
	EscalateTo  string
	Permissions []Permission
}

// Matrix is the resolved, read-only permission matrix.
type Matrix struct {
	overlays    map[string]map[string]PermissionSet
	overrides   map[string]ToolOverride
	escalations map[string]EscalationPath
	roles       map[string]Role
}

// EmptyMatrix returns a matrix with no overlays, overrides or escalations.
func EmptyMatrix() *Matrix {
	return &Matrix{
		overlays:    map[string]map[string]PermissionSet{},
		overrides:   map[string]ToolOverride{},
		escalations: map[string]EscalationPath{},
		roles:       map[string]Role{},
	}
}

// LoadMatrix reads and resolves a permission matrix document.
func LoadMatrix(path string, logger zerolog.Logger) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read permission matrix: %w", err)
	}
	return ParseMatrix(data, logger)
}

// ParseMatrix resolves a permission matrix from YAML or JSON bytes.
func ParseMatrix(data []byte, logger zerolog.Logger) (*Matrix, error) {
	var doc MatrixDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse permission matrix: %w", err)
	}
	return NewMatrix(doc, logger), nil
}

// NewMatrix resolves doc. Unknown permission names are logged and skipped.
func NewMatrix(doc MatrixDocument, logger zerolog.Logger) *Matrix {
	logger = logger.With().Str("component", "permission-matrix").Logger()
	m := EmptyMatrix()

	for domain, byRole := range doc.DomainRolePermissions {
		m.overlays[domain] = make(map[string]PermissionSet, len(byRole))
		for role, names := range byRole {
			m.overlays[domain][role] = parsePermissions(names, logger.With().
				Str("domain", domain).
				Str("role", role).
				Logger())
		}
	}

	for toolName, override := range doc.ToolOverrides {
		m.overrides[toolName] = override
	}

	for role, rule := range doc.EscalationPaths {
		perms := parsePermissions(rule.AllowedPermissions, logger.With().
			Str("escalation_from", role).
			Logger()).Sorted()
		if len(perms) > MaxEscalationPermissions {
			logger.Warn().
				Str("role", role).
				Int("declared", len(perms)).
				Int("max", MaxEscalationPermissions).
				Msg("Escalation path truncated")
			perms = perms[:MaxEscalationPermissions]
		}
		m.escalations[role] = EscalationPath{
			From:        role,
			EscalateTo:  rule.EscalateTo,
			Permissions: perms,
		}
	}

	for id, spec := range doc.Roles {
		m.roles[id] = Role{
			ID:          id,
			Name:        spec.Name,
			Level:       spec.Level,
			Permissions: parsePermissions(spec.Permissions, logger.With().Str("role", id).Logger()),
			CanDelegate: spec.CanDelegate,
			CanApprove:  spec.CanApprove,
			Description: spec.Description,
		}
	}

	logger.Debug().
		Int("domains", len(m.overlays)).
		Int("overrides", len(m.overrides)).
		Int("escalations", len(m.escalations)).
		Int("roles", len(m.roles)).
		Msg("Permission matrix resolved")

	return m
}

// Overlay returns the extra permissions granted to role within domain.
func (m *Matrix) Overlay(domain, role string) PermissionSet {
	if m == nil {
		return nil
	}
	return m.overlays[domain][role]
}

// Override returns the tool-level override for toolName, if any.
func (m *Matrix) Override(toolName string) (ToolOverride, bool) {
	if m == nil {
		return ToolOverride{}, false
	}
	o, ok := m.overrides[toolName]
	return o, ok
}

// Escalation returns the escalation path declared for role, if any.
func (m *Matrix) Escalation(role string) (EscalationPath, bool) {
	if m == nil {
		return EscalationPath{}, false
	}
	e, ok := m.escalations[role]
	return e, ok
}

// Roles returns the roles declared by the document.
func (m *Matrix) Roles() map[string]Role {
	if m == nil {
		return nil
	}
	return m.roles
}

func parsePermissions(names []string, logger zerolog.Logger) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		p, ok := ParsePermission(name)
		if !ok {
			logger.Warn().Str("permission", name).Msg("Unknown permission in matrix, skipping")
			continue
		}
		set[p] = struct{}{}
	}
	return set
}
