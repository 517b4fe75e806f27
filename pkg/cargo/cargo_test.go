package cargo //nolint:testpackage // exercises unexported selector logic.

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadataFixture = `{
  "packages": [
    {
      "id": "app 0.1.0 (path+file:///ws/app)",
      "name": "app",
      "version": "0.1.0",
      "manifest_path": "/ws/app/Cargo.toml",
      "targets": [
        {"kind": ["bin"], "name": "app", "src_path": "/ws/app/src/main.rs"},
        {"kind": ["custom-build"], "name": "build-script-build", "src_path": "/ws/app/build.rs"}
      ]
    },
    {
      "id": "fancy-regex 0.13.0 (registry+https://github.com/rust-lang/crates.io-index)",
      "name": "fancy-regex",
      "version": "0.13.0",
      "manifest_path": "/reg/fancy-regex-0.13.0/Cargo.toml",
      "targets": []
    }
  ],
  "workspace_members": ["app 0.1.0 (path+file:///ws/app)"],
  "workspace_root": "/ws",
  "resolve": {
    "nodes": [
      {
        "id": "app 0.1.0 (path+file:///ws/app)",
        "deps": [
          {"name": "fancy_regex", "pkg": "fancy-regex 0.13.0 (registry+https://github.com/rust-lang/crates.io-index)"}
        ]
      }
    ]
  }
}`

func TestMetadataDecode(t *testing.T) {
	t.Parallel()

	var meta Metadata

	require.NoError(t, json.Unmarshal([]byte(metadataFixture), &meta))

	pkgs := meta.WorkspacePackages()
	require.Len(t, pkgs, 1)
	assert.Equal(t, "app", pkgs[0].Name)
	require.Len(t, pkgs[0].Targets, 2)
	assert.Equal(t, []string{"bin"}, pkgs[0].Targets[0].Kind)
}

func TestImportToPackage(t *testing.T) {
	t.Parallel()

	var meta Metadata

	require.NoError(t, json.Unmarshal([]byte(metadataFixture), &meta))

	m := meta.ImportToPackage()
	assert.Equal(t, "fancy-regex", m["fancy_regex"])
}

func TestTargetSelector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind string
		name string
		want []string
		ok   bool
	}{
		{"lib", "x", []string{"--lib"}, true},
		{"proc-macro", "x", []string{"--lib"}, true},
		{"bin", "tool", []string{"--bin", "tool"}, true},
		{"test", "integration", []string{"--test", "integration"}, true},
		{"bench", "perf", []string{"--bench", "perf"}, true},
		{"example", "demo", []string{"--example", "demo"}, true},
		{"custom-build", "build-script-build", nil, false},
	}

	for _, tt := range tests {
		sel, ok := targetSelector(Target{Kind: []string{tt.kind}, Name: tt.name})
		assert.Equal(t, tt.ok, ok, tt.kind)
		assert.Equal(t, tt.want, sel, tt.kind)
	}
}

func TestRegistryLibName(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	crate := filepath.Join(home, "registry", "src", "index.crates.io-abc123", "nokogiri-1.2.3")
	require.NoError(t, os.MkdirAll(crate, 0o755))

	manifestText := "[package]\nname = \"nokogiri\"\n\n[lib]\nname = \"noko\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(crate, "Cargo.toml"), []byte(manifestText), 0o644))

	reg, err := NewRegistry(home)
	require.NoError(t, err)

	name, err := reg.LibName("nokogiri", "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "noko", name)

	// Memoized path returns the same answer.
	name, err = reg.LibName("nokogiri", "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "noko", name)

	_, err = reg.LibName("absent", "0.0.1")
	assert.ErrorIs(t, err, ErrNoLibName)
}
