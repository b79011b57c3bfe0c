package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/types"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is returned when a tenant manifest declares a
// reconciliation policy that cannot be admitted
var ErrInvalidPolicy = errors.New("invalid reconciliation policy")

// Duration wraps time.Duration for YAML fields like "5m" or "30s"
type Duration time.Duration

// UnmarshalYAML parses a Go duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Server is the daemon configuration
type Server struct {
	DataDir string `yaml:"data_dir"`
	Listen  string `yaml:"listen"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Scheduler struct {
		Interval       Duration `yaml:"interval"`
		Workers        int      `yaml:"workers"`
		BatchSize      int      `yaml:"batch_size"`
		PassDeadline   Duration `yaml:"pass_deadline"`
		EventRetention Duration `yaml:"event_retention"`
	} `yaml:"scheduler"`

	Healing struct {
		// Consistency window for heal command correlations; slow
		// executors (multi-stage builds) raise it per deployment
		WindowSeconds int `yaml:"window_seconds"`

		// ExecutorURL is the adapter bridge endpoint heal commands are
		// posted to; empty means dry-run logging
		ExecutorURL string `yaml:"executor_url"`
	} `yaml:"healing"`

	Redis struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"redis"`

	Raft struct {
		Enabled  bool   `yaml:"enabled"`
		NodeID   string `yaml:"node_id"`
		BindAddr string `yaml:"bind_addr"`
	} `yaml:"raft"`
}

// DefaultServer returns the server defaults
func DefaultServer() *Server {
	cfg := &Server{
		DataDir: "/var/lib/stackwarden",
		Listen:  ":8400",
	}
	cfg.Log.Level = "info"
	cfg.Healing.WindowSeconds = 5
	return cfg
}

// LoadServer reads a server config file, applying defaults for anything
// unset
func LoadServer(path string) (*Server, error) {
	cfg := DefaultServer()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// TenantManifest declares one tenant stack
type TenantManifest struct {
	APIVersion string         `yaml:"apiVersion"`
	Kind       string         `yaml:"kind"`
	Metadata   ManifestMeta   `yaml:"metadata"`
	Spec       TenantStackSpec `yaml:"spec"`
}

// ManifestMeta identifies the tenant stack
type ManifestMeta struct {
	Tenant string            `yaml:"tenant"`
	Stack  string            `yaml:"stack"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// TenantStackSpec is the declared composition plus its reconciliation
// policy
type TenantStackSpec struct {
	Providers    map[string]string            `yaml:"providers"`
	Resources    map[string]ResourceSpec      `yaml:"resources"`
	Integrations map[string]map[string]string `yaml:"integrations"`
	Policy       *PolicySpec                  `yaml:"policy,omitempty"`
}

// ResourceSpec declares one resource and how to probe it
type ResourceSpec struct {
	Handle   string `yaml:"handle"`
	Probe    string `yaml:"probe,omitempty"` // "http", "tcp", or empty
	Endpoint string `yaml:"endpoint,omitempty"`
}

// PolicySpec is the YAML shape of a reconciliation policy
type PolicySpec struct {
	AutoHeal        bool     `yaml:"auto_heal"`
	MaxHealAttempts int      `yaml:"max_heal_attempts"`
	Backoff         string   `yaml:"backoff"`
	BaseDelay       Duration `yaml:"base_delay"`
	RequireApproval []string `yaml:"require_approval"`
}

// LoadTenantManifest reads and validates a tenant stack manifest
func LoadTenantManifest(path string) (*TenantManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseTenantManifest(data)
}

// ParseTenantManifest parses and validates manifest bytes
func ParseTenantManifest(data []byte) (*TenantManifest, error) {
	var m TenantManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if m.Kind != "TenantStack" {
		return nil, fmt.Errorf("unsupported manifest kind: %s", m.Kind)
	}
	if m.Metadata.Tenant == "" || m.Metadata.Stack == "" {
		return nil, fmt.Errorf("manifest metadata must set tenant and stack")
	}
	if m.Spec.Policy != nil {
		if err := validatePolicy(m.Spec.Policy); err != nil {
			return nil, err
		}
	}
	for name, res := range m.Spec.Resources {
		switch res.Probe {
		case "", "http", "tcp":
		default:
			return nil, fmt.Errorf("resource %s: unknown probe type %q", name, res.Probe)
		}
		if res.Probe != "" && res.Endpoint == "" {
			return nil, fmt.Errorf("resource %s: probe requires an endpoint", name)
		}
	}
	return &m, nil
}

// validatePolicy rejects policies at admission time rather than failing
// mid-reconciliation
func validatePolicy(p *PolicySpec) error {
	if p.AutoHeal && p.MaxHealAttempts <= 0 {
		return fmt.Errorf("%w: max_heal_attempts must be positive when auto_heal is on", ErrInvalidPolicy)
	}
	switch p.Backoff {
	case "", string(types.BackoffLinear), string(types.BackoffExponential):
	default:
		return fmt.Errorf("%w: unknown backoff strategy %q", ErrInvalidPolicy, p.Backoff)
	}
	for _, dt := range p.RequireApproval {
		switch types.DriftType(dt) {
		case types.DriftProvider, types.DriftResource, types.DriftIntegration:
		default:
			return fmt.Errorf("%w: unknown drift type %q in require_approval", ErrInvalidPolicy, dt)
		}
	}
	return nil
}

// Policy converts the spec into the domain policy, filling defaults
func (p *PolicySpec) Policy() types.ReconciliationPolicy {
	if p == nil {
		return types.DefaultPolicy()
	}

	policy := types.ReconciliationPolicy{
		AutoHeal:        p.AutoHeal,
		MaxHealAttempts: p.MaxHealAttempts,
		Backoff:         types.BackoffStrategy(p.Backoff),
		BaseDelay:       p.BaseDelay.Std(),
	}
	if policy.Backoff == "" {
		policy.Backoff = types.BackoffExponential
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 30 * time.Second
	}
	for _, dt := range p.RequireApproval {
		policy.RequireApproval = append(policy.RequireApproval, types.DriftType(dt))
	}
	return policy
}

// Composition converts the spec into the domain composition
func (s TenantStackSpec) Composition() *types.Composition {
	comp := &types.Composition{
		Providers:    s.Providers,
		Resources:    make(map[string]types.ResourceRef, len(s.Resources)),
		Integrations: s.Integrations,
	}
	for name, res := range s.Resources {
		probeType := types.ProbeNone
		switch res.Probe {
		case "http":
			probeType = types.ProbeHTTP
		case "tcp":
			probeType = types.ProbeTCP
		}
		comp.Resources[name] = types.ResourceRef{
			Handle:    res.Handle,
			ProbeType: probeType,
			Endpoint:  res.Endpoint,
		}
	}
	return comp
}
