//nolint:testpackage // exercises unexported flag overlay logic.
package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boshen/cargo-shear-sub000/internal/config"
)

func TestApplyFlagsOverlay(t *testing.T) {
	t.Parallel()

	cmd := NewRunCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--fix", "--format", "json", "-p", "app,lib"}))

	rc := &RunCommand{}
	rc.fix = true
	rc.format = "json"
	rc.packages = []string{"app", "lib"}

	cfg := &config.Config{Format: "auto", Color: "auto", Expand: config.ExpandConfig{Timeout: "5m"}}
	rc.applyFlags(cmd, cfg)

	assert.True(t, cfg.Fix)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"app", "lib"}, cfg.Packages)
	assert.Equal(t, "auto", cfg.Color)
	assert.False(t, cfg.DryRun)
}

func TestApplyFlagsLeavesConfigWhenUnset(t *testing.T) {
	t.Parallel()

	cmd := NewRunCommand()
	require.NoError(t, cmd.ParseFlags(nil))

	rc := &RunCommand{}
	cfg := &config.Config{Fix: true, Format: "yaml", Color: "never", Expand: config.ExpandConfig{Timeout: "5m"}}
	rc.applyFlags(cmd, cfg)

	// File-sourced values survive when the flag was not passed.
	assert.True(t, cfg.Fix)
	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, "never", cfg.Color)
}

func TestRunCommandFlagSet(t *testing.T) {
	t.Parallel()

	cmd := NewRunCommand()

	for _, name := range []string{"config", "fix", "dry-run", "expand", "format", "color", "package", "exclude", "verbose", "quiet"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag %s", name)
	}

	assert.Equal(t, "p", cmd.Flags().Lookup("package").Shorthand)
}
