// Package config implements §10.3's Config: the §6 enumerated configuration
// values, loadable from YAML the way the teacher's core.Config is, built
// through functional options the way core.NewConfig(opts ...Option) is.
//
// Grounded on _examples/itsneelabh-gomind/core/config.go's Option/NewConfig
// shape (DefaultConfig() seeded, then each Option validated and applied) and
// its own gopkg.in/yaml.v3 dependency for file-based overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/varunalfred/Finmentor-sub000/planner"
)

// Config mirrors §6's enumerated configuration.
type Config struct {
	RPMLimit                   int                            `yaml:"rpm_limit"`
	MaxConcurrent              int                             `yaml:"max_concurrent"`
	TurnDeadline                time.Duration                  `yaml:"-"`
	TurnDeadlineMS              int                             `yaml:"turn_deadline_ms"`
	LLMCallDeadline             time.Duration                  `yaml:"-"`
	LLMCallDeadlineMS           int                             `yaml:"llm_call_deadline_ms"`
	MissingDependencyPolicy    planner.MissingDependencyPolicy `yaml:"missing_dependency_policy"`
	SynthesisConflictThreshold int                             `yaml:"synthesis_conflict_threshold"`
	VerificationThreshold      float64                         `yaml:"verification_threshold"`

	// CircuitBreakerFailureThreshold and CircuitBreakerRecoveryTimeout are
	// ambient resilience knobs (§10.2) the distilled spec doesn't enumerate
	// but the teacher's ExecutionOptions always carries alongside the rest.
	CircuitBreakerFailureThreshold int           `yaml:"circuit_breaker_failure_threshold"`
	CircuitBreakerRecoveryTimeout  time.Duration `yaml:"-"`
}

// Option mutates a Config under construction, matching the teacher's
// `func(*Config) error` Option shape.
type Option func(*Config) error

// DefaultConfig returns §6's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		RPMLimit:                       10,
		MaxConcurrent:                  2,
		TurnDeadline:                   60 * time.Second,
		TurnDeadlineMS:                 60000,
		LLMCallDeadline:                25 * time.Second,
		LLMCallDeadlineMS:              25000,
		MissingDependencyPolicy:        planner.AutoAdd,
		SynthesisConflictThreshold:     60,
		VerificationThreshold:          0.3,
		CircuitBreakerFailureThreshold: 5,
		CircuitBreakerRecoveryTimeout:  30 * time.Second,
	}
}

// New builds a Config from DefaultConfig with opts applied in order,
// matching core.NewConfig(opts ...Option).
func New(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithRPMLimit sets the token-bucket refill capacity per minute.
func WithRPMLimit(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("config.WithRPMLimit: rpm_limit must be positive, got %d", n)
		}
		c.RPMLimit = n
		return nil
	}
}

// WithMaxConcurrent sets the executor ceiling.
func WithMaxConcurrent(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("config.WithMaxConcurrent: max_concurrent must be positive, got %d", n)
		}
		c.MaxConcurrent = n
		return nil
	}
}

// WithTurnDeadline sets the turn-level deadline.
func WithTurnDeadline(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("config.WithTurnDeadline: turn_deadline_ms must be positive")
		}
		c.TurnDeadline = d
		c.TurnDeadlineMS = int(d.Milliseconds())
		return nil
	}
}

// WithLLMCallDeadline sets the individual LLM-call deadline.
func WithLLMCallDeadline(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("config.WithLLMCallDeadline: llm_call_deadline_ms must be positive")
		}
		c.LLMCallDeadline = d
		c.LLMCallDeadlineMS = int(d.Milliseconds())
		return nil
	}
}

// WithMissingDependencyPolicy sets the planner's missing-dependency policy.
func WithMissingDependencyPolicy(p planner.MissingDependencyPolicy) Option {
	return func(c *Config) error {
		if p != planner.AutoAdd && p != planner.Fail {
			return fmt.Errorf("config.WithMissingDependencyPolicy: unknown policy %q", p)
		}
		c.MissingDependencyPolicy = p
		return nil
	}
}

// WithSynthesisConflictThreshold sets the confidence threshold above which
// two differing recommendations are reported as "mixed signals".
func WithSynthesisConflictThreshold(n int) Option {
	return func(c *Config) error {
		if n < 0 || n > 100 {
			return fmt.Errorf("config.WithSynthesisConflictThreshold: must be in [0,100], got %d", n)
		}
		c.SynthesisConflictThreshold = n
		return nil
	}
}

// WithVerificationThreshold sets the relevance floor below which a bundle is
// flagged thin for verification-requiring intents.
func WithVerificationThreshold(f float64) Option {
	return func(c *Config) error {
		if f < 0 || f > 1 {
			return fmt.Errorf("config.WithVerificationThreshold: must be in [0,1], got %f", f)
		}
		c.VerificationThreshold = f
		return nil
	}
}

// WithCircuitBreaker sets the LLM-client circuit breaker's failure streak
// threshold and recovery timeout.
func WithCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) Option {
	return func(c *Config) error {
		if failureThreshold <= 0 {
			return fmt.Errorf("config.WithCircuitBreaker: failureThreshold must be positive")
		}
		c.CircuitBreakerFailureThreshold = failureThreshold
		c.CircuitBreakerRecoveryTimeout = recoveryTimeout
		return nil
	}
}

// FromYAMLFile loads overrides from a YAML file laid out like Config's
// fields (rpm_limit, max_concurrent, ...) and applies them as an Option,
// matching the teacher's file-then-env-then-options layering (here: file,
// then any opts passed alongside it).
func FromYAMLFile(path string) Option {
	return func(c *Config) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config.FromYAMLFile: %w", err)
		}
		var raw Config
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("config.FromYAMLFile: parse %s: %w", path, err)
		}
		if raw.RPMLimit > 0 {
			c.RPMLimit = raw.RPMLimit
		}
		if raw.MaxConcurrent > 0 {
			c.MaxConcurrent = raw.MaxConcurrent
		}
		if raw.TurnDeadlineMS > 0 {
			c.TurnDeadlineMS = raw.TurnDeadlineMS
			c.TurnDeadline = time.Duration(raw.TurnDeadlineMS) * time.Millisecond
		}
		if raw.LLMCallDeadlineMS > 0 {
			c.LLMCallDeadlineMS = raw.LLMCallDeadlineMS
			c.LLMCallDeadline = time.Duration(raw.LLMCallDeadlineMS) * time.Millisecond
		}
		if raw.MissingDependencyPolicy != "" {
			c.MissingDependencyPolicy = raw.MissingDependencyPolicy
		}
		if raw.SynthesisConflictThreshold > 0 {
			c.SynthesisConflictThreshold = raw.SynthesisConflictThreshold
		}
		if raw.VerificationThreshold > 0 {
			c.VerificationThreshold = raw.VerificationThreshold
		}
		if raw.CircuitBreakerFailureThreshold > 0 {
			c.CircuitBreakerFailureThreshold = raw.CircuitBreakerFailureThreshold
		}
		return nil
	}
}
