package tool

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/xeipuuv/gojsonschema"
)

// WildcardRole in Manifest.AllowedRoles admits every role.
const WildcardRole = "*"

// DefaultTimeout applies when a manifest declares no timeout budget.
const DefaultTimeout = 30 * time.Second

var (
	// nameRegex validates tool names (lowercase, starts with a letter)
	nameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

	// versionRegex validates MAJOR.MINOR.PATCH
	versionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// Example documents one sample invocation of a tool.
type Example struct {
	Description string         `json:"description,omitempty"`
	Params      map[string]any `json:"params"`
}

// Manifest is the static description of a tool: interface, access rules and
// resource budget. Manifests are treated as immutable once produced.
type Manifest struct {
	Name                string         `json:"name"`
	Version             string         `json:"version"`
	Description         string         `json:"description"`
	Domains             []string       `json:"domains"`
	AllowedRoles        []string       `json:"allowed_roles"`
	RequiredPermissions []string       `json:"required_permissions,omitempty"`
	InputSchema         map[string]any `json:"input_schema"`
	OutputSchema        map[string]any `json:"output_schema,omitempty"`
	CostEstimate        float64        `json:"cost_estimate,omitempty"`
	TimeoutSeconds      float64        `json:"timeout_seconds,omitempty"`
	RequiresNetwork     bool           `json:"requires_network,omitempty"`
	RequiresFilesystem  bool           `json:"requires_filesystem,omitempty"`
	Examples            []Example      `json:"examples,omitempty"`
	Tags                []string       `json:"tags,omitempty"`

	// Implementation names the catalog factory backing this manifest.
	// Empty means the factory is registered under Name.
	Implementation string `json:"implementation,omitempty"`
}

// Timeout returns the execution budget declared by the manifest.
func (m Manifest) Timeout() time.Duration {
	if m.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(m.TimeoutSeconds * float64(time.Second))
}

// AllowsRole reports whether role is listed (or the wildcard is).
func (m Manifest) AllowsRole(role string) bool {
	return slices.Contains(m.AllowedRoles, role) || slices.Contains(m.AllowedRoles, WildcardRole)
}

// InDomain reports whether the manifest applies to domain.
func (m Manifest) InDomain(domain string) bool {
	return slices.Contains(m.Domains, domain)
}

// ImplementationName returns the catalog factory name.
func (m Manifest) ImplementationName() string {
	if m.Implementation != "" {
		return m.Implementation
	}
	return m.Name
}

// Validate checks the structural rules every manifest must satisfy.
func (m Manifest) Validate() error {
	if !nameRegex.MatchString(m.Name) {
		return fmt.Errorf("invalid tool name %q (must match %s)", m.Name, nameRegex.String())
	}
	if !versionRegex.MatchString(m.Version) {
		return fmt.Errorf("invalid version %q (must be semver: X.Y.Z)", m.Version)
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return fmt.Errorf("invalid version %q: %w", m.Version, err)
	}
	if m.Description == "" {
		return fmt.Errorf("tool %s: description cannot be empty", m.Name)
	}
	if m.TimeoutSeconds < 0 {
		return fmt.Errorf("tool %s: timeout_seconds cannot be negative", m.Name)
	}
	if m.CostEstimate < 0 {
		return fmt.Errorf("tool %s: cost_estimate cannot be negative", m.Name)
	}
	if m.InputSchema != nil {
		if t, ok := m.InputSchema["type"].(string); ok && t != "object" {
			return fmt.Errorf("tool %s: input_schema type must be object, got %s", m.Name, t)
		}
	}
	return nil
}

// LoadManifest loads and validates a tool manifest from a tool.json file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses and validates a manifest document.
func ParseManifest(data []byte) (Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}

	if err := validateManifestSchema(data); err != nil {
		return Manifest{}, fmt.Errorf("manifest schema validation failed: %w", err)
	}

	if err := manifest.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest validation failed: %w", err)
	}

	return manifest, nil
}

var manifestSchemaLoader = gojsonschema.NewStringLoader(ManifestSchema)

func validateManifestSchema(data []byte) error {
	result, err := gojsonschema.Validate(manifestSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("schema validation errors: %s", joinResultErrors(result.Errors()))
	}
	return nil
}
