package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunalfred/Finmentor-sub000/planner"
)

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.RPMLimit)
	assert.Equal(t, 2, cfg.MaxConcurrent)
	assert.Equal(t, 60*time.Second, cfg.TurnDeadline)
	assert.Equal(t, 25*time.Second, cfg.LLMCallDeadline)
	assert.Equal(t, planner.AutoAdd, cfg.MissingDependencyPolicy)
	assert.Equal(t, 60, cfg.SynthesisConflictThreshold)
	assert.Equal(t, 0.3, cfg.VerificationThreshold)
}

func TestNewAppliesOptionsInOrder(t *testing.T) {
	cfg, err := New(WithRPMLimit(20), WithMaxConcurrent(4), WithMissingDependencyPolicy(planner.Fail))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.RPMLimit)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, planner.Fail, cfg.MissingDependencyPolicy)
}

func TestWithRPMLimitRejectsNonPositive(t *testing.T) {
	_, err := New(WithRPMLimit(0))
	assert.Error(t, err)
}

func TestWithVerificationThresholdRejectsOutOfRange(t *testing.T) {
	_, err := New(WithVerificationThreshold(1.5))
	assert.Error(t, err)
}

func TestFromYAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpm_limit: 30
max_concurrent: 8
missing_dependency_policy: fail
synthesis_conflict_threshold: 70
`), 0o600))

	cfg, err := New(FromYAMLFile(path))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.RPMLimit)
	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.Equal(t, planner.Fail, cfg.MissingDependencyPolicy)
	assert.Equal(t, 70, cfg.SynthesisConflictThreshold)
}
