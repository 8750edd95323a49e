package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ricirt/feedrelay/internal/domain"
)

// Fetch limit bounds for a single poll of one target.
const (
	MinFetchLimit     = 1
	MaxFetchLimit     = 200
	DefaultFetchLimit = 20
)

// Runtime is the hot-reloadable part of the configuration:
//
//	targets:
//	  - name: nasa
//	  - name: esa
//	    disabled: true
//	forwarding:
//	  enabled: true
//	  dry_run: false
//	  mode: retweet
//	  pacing: 10s
//	  skip_mentions: true
//	  forward_quotes: false
//	  fetch_limit: 40
//	  skip_backlog_on_first_poll: false
type Runtime struct {
	Targets    []TargetConfig   `yaml:"targets"`
	Forwarding ForwardingConfig `yaml:"forwarding"`
}

// TargetConfig is one monitored feed identity.
type TargetConfig struct {
	Name     string `yaml:"name"`
	Disabled bool   `yaml:"disabled"`
}

// ForwardingConfig maps onto domain.Policy.
type ForwardingConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DryRun        bool     `yaml:"dry_run"`
	Mode          string   `yaml:"mode"`
	Pacing        Duration `yaml:"pacing"`
	SkipMentions  bool     `yaml:"skip_mentions"`
	ForwardQuotes bool     `yaml:"forward_quotes"`
	FetchLimit    int      `yaml:"fetch_limit"`
	SkipBacklog   bool     `yaml:"skip_backlog_on_first_poll"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

var targetNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,50}$`)

// NormalizeTarget strips a leading "@" and surrounding space.
func NormalizeTarget(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "@")
}

// ValidTarget reports whether name is a well-formed target handle.
func ValidTarget(name string) bool { return targetNamePattern.MatchString(name) }

// LoadRuntime reads and parses a runtime file.
func LoadRuntime(path string) (*Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime file: %w", err)
	}
	return ParseRuntime(data)
}

// ParseRuntime expands ${VAR} / ${VAR:-default} references, parses the YAML
// and validates it.
func ParseRuntime(data []byte) (*Runtime, error) {
	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, err
	}
	var rt Runtime
	if err := yaml.Unmarshal([]byte(expanded), &rt); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	rt.applyDefaults()
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *Runtime) applyDefaults() {
	for i := range r.Targets {
		r.Targets[i].Name = NormalizeTarget(r.Targets[i].Name)
	}
	if r.Forwarding.Mode == "" {
		r.Forwarding.Mode = string(domain.ModeRetweet)
	}
	if r.Forwarding.FetchLimit == 0 {
		r.Forwarding.FetchLimit = DefaultFetchLimit
	}
}

// Validate reports the first invalid field.
func (r *Runtime) Validate() error {
	seen := make(map[string]bool, len(r.Targets))
	for i, t := range r.Targets {
		if !targetNamePattern.MatchString(t.Name) {
			return fmt.Errorf("targets[%d]: %w: %q", i, domain.ErrInvalidTarget, t.Name)
		}
		key := strings.ToLower(t.Name)
		if seen[key] {
			return fmt.Errorf("targets[%d]: duplicate target %q", i, t.Name)
		}
		seen[key] = true
	}
	if !domain.PublishMode(r.Forwarding.Mode).IsValid() {
		return fmt.Errorf("forwarding.mode: %w: %q", domain.ErrInvalidMode, r.Forwarding.Mode)
	}
	if r.Forwarding.Pacing.Duration() < 0 {
		return fmt.Errorf("forwarding.pacing must not be negative")
	}
	if r.Forwarding.FetchLimit < 0 {
		return fmt.Errorf("forwarding.fetch_limit must not be negative")
	}
	return nil
}

// ActiveTargets returns the names of enabled targets, in file order.
func (r *Runtime) ActiveTargets() []string {
	names := make([]string, 0, len(r.Targets))
	for _, t := range r.Targets {
		if !t.Disabled {
			names = append(names, t.Name)
		}
	}
	return names
}

// Policy returns the forwarding policy with the fetch limit clamped.
func (r *Runtime) Policy() domain.Policy {
	f := r.Forwarding
	return domain.Policy{
		Enabled:       f.Enabled,
		DryRun:        f.DryRun,
		Mode:          domain.PublishMode(f.Mode),
		Pacing:        f.Pacing.Duration(),
		SkipMentions:  f.SkipMentions,
		ForwardQuotes: f.ForwardQuotes,
		FetchLimit:    min(max(f.FetchLimit, MinFetchLimit), MaxFetchLimit),
		SkipBacklog:   f.SkipBacklog,
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		value, exists := os.LookupEnv(name)
		if !exists {
			if hasDefault {
				return sub[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", name)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
