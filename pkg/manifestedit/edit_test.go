//nolint:testpackage // exercises unexported span arithmetic directly.
package manifestedit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boshen/cargo-shear-sub000/pkg/diagnostics"
	"github.com/Boshen/cargo-shear-sub000/pkg/manifest"
)

const fixtureManifest = `[package]
name = "demo"
version = "0.1.0"

[dependencies]
serde = { version = "1", features = ["derive"] }
oncecell = "1" # keep me
fancy = { package = "fancy-regex", version = "0.13", optional = true }
tempfile = "3"

[dependencies.bytes]
version = "1"
features = ["serde"]

[dev-dependencies]
insta = "1"

[features]
default = ["regex"]
regex = ["dep:fancy", "serde/rc"]
`

func writeFixture(t *testing.T, content string) (string, *manifest.Manifest) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "Cargo.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	m, err := manifest.Parse(path, []byte(content))
	require.NoError(t, err)

	return path, m
}

func reparse(t *testing.T, path string) *manifest.Manifest {
	t.Helper()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	m, err := manifest.Parse(path, raw)
	require.NoError(t, err)

	return m
}

func normalLoc() manifest.DepLocation {
	return manifest.DepLocation{Table: manifest.DepNormal}
}

func applyFindings(t *testing.T, path string, m *manifest.Manifest, findings []diagnostics.Finding) Result {
	t.Helper()

	plan, err := BuildPlan(findings, map[string]*manifest.Manifest{path: m})
	require.NoError(t, err)

	res, err := plan.Apply(true)
	require.NoError(t, err)

	return res
}

func TestRemoveUnusedDependency(t *testing.T) {
	t.Parallel()

	path, m := writeFixture(t, fixtureManifest)
	res := applyFindings(t, path, m, []diagnostics.Finding{
		{Kind: diagnostics.UnusedDependency, File: path, Dep: "tempfile", Location: normalLoc()},
	})

	assert.Equal(t, 1, res.Fixed)

	after := reparse(t, path)
	_, found := findDependency(after.Dependencies, "tempfile", normalLoc())
	assert.False(t, found)

	// Unrelated declarations survive verbatim, comment included.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `oncecell = "1" # keep me`)
	assert.Contains(t, string(raw), `serde = { version = "1", features = ["derive"] }`)
}

func TestRemoveOptionalPrunesFeatureValues(t *testing.T) {
	t.Parallel()

	path, m := writeFixture(t, fixtureManifest)
	applyFindings(t, path, m, []diagnostics.Finding{
		{Kind: diagnostics.UnusedOptionalDependency, File: path, Dep: "fancy", Location: normalLoc()},
	})

	after := reparse(t, path)
	_, found := findDependency(after.Dependencies, "fancy", normalLoc())
	assert.False(t, found)

	for _, feat := range after.Features {
		for _, ref := range feat.Refs {
			assert.NotEqual(t, "fancy", ref.Dep, "feature %s still references removed dep", feat.Name)
		}
	}

	// Sibling values in the pruned array stay intact.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `regex = ["serde/rc"]`)
}

func TestRemoveHeaderSubtable(t *testing.T) {
	t.Parallel()

	path, m := writeFixture(t, fixtureManifest)
	applyFindings(t, path, m, []diagnostics.Finding{
		{Kind: diagnostics.UnusedDependency, File: path, Dep: "bytes", Location: normalLoc()},
	})

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "[dependencies.bytes]")
	assert.NotContains(t, string(raw), `features = ["serde"]`)

	after := reparse(t, path)
	_, found := findDependency(after.Dependencies, "bytes", normalLoc())
	assert.False(t, found)
}

func TestMoveMisplacedToExistingDevTable(t *testing.T) {
	t.Parallel()

	path, m := writeFixture(t, fixtureManifest)
	applyFindings(t, path, m, []diagnostics.Finding{
		{Kind: diagnostics.MisplacedDependency, File: path, Dep: "tempfile", Location: normalLoc()},
	})

	after := reparse(t, path)

	_, inNormal := findDependency(after.Dependencies, "tempfile", normalLoc())
	assert.False(t, inNormal)

	moved, inDev := findDependency(after.Dependencies, "tempfile", manifest.DepLocation{Table: manifest.DepDev})
	require.True(t, inDev)
	assert.False(t, moved.Optional)
}

func TestMoveMisplacedCreatesDevTable(t *testing.T) {
	t.Parallel()

	src := `[package]
name = "tiny"
version = "0.1.0"

[dependencies]
tempfile = "3"
`
	path, m := writeFixture(t, src)
	applyFindings(t, path, m, []diagnostics.Finding{
		{Kind: diagnostics.MisplacedDependency, File: path, Dep: "tempfile", Location: normalLoc()},
	})

	after := reparse(t, path)
	_, inDev := findDependency(after.Dependencies, "tempfile", manifest.DepLocation{Table: manifest.DepDev})
	assert.True(t, inDev)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[dev-dependencies]\ntempfile = \"3\"")
}

func TestMoveMisplacedOptionalStripsFlag(t *testing.T) {
	t.Parallel()

	src := `[package]
name = "tiny"
version = "0.1.0"

[dependencies]
fancy = { version = "0.13", optional = true }

[dev-dependencies]
insta = "1"

[features]
regex = ["dep:fancy"]
`
	path, m := writeFixture(t, src)
	applyFindings(t, path, m, []diagnostics.Finding{
		{Kind: diagnostics.MisplacedOptionalDependency, File: path, Dep: "fancy", Location: normalLoc()},
	})

	after := reparse(t, path)
	moved, inDev := findDependency(after.Dependencies, "fancy", manifest.DepLocation{Table: manifest.DepDev})
	require.True(t, inDev)
	assert.False(t, moved.Optional)

	for _, feat := range after.Features {
		assert.Empty(t, feat.Refs, "feature %s should have been pruned", feat.Name)
	}
}

func TestRemoveWorkspaceDependency(t *testing.T) {
	t.Parallel()

	src := `[workspace]
members = ["a", "b"]

[workspace.dependencies]
serde = "1"
tempfile = "3"
`
	path, m := writeFixture(t, src)
	applyFindings(t, path, m, []diagnostics.Finding{
		{Kind: diagnostics.UnusedWorkspaceDependency, File: path, Dep: "tempfile", Location: normalLoc()},
	})

	after := reparse(t, path)
	_, found := findDependency(after.WorkspaceDependencies, "tempfile", normalLoc())
	assert.False(t, found)

	_, kept := findDependency(after.WorkspaceDependencies, "serde", normalLoc())
	assert.True(t, kept)
}

func TestDryRunLeavesFileUntouched(t *testing.T) {
	t.Parallel()

	path, m := writeFixture(t, fixtureManifest)

	plan, err := BuildPlan([]diagnostics.Finding{
		{Kind: diagnostics.UnusedDependency, File: path, Dep: "tempfile", Location: normalLoc()},
	}, map[string]*manifest.Manifest{path: m})
	require.NoError(t, err)

	res, err := plan.Apply(false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fixed)
	assert.Contains(t, res.Diffs[path], `- tempfile = "3"`)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixtureManifest, string(raw))
}

func TestUnfixableFindingsSkipped(t *testing.T) {
	t.Parallel()

	path, m := writeFixture(t, fixtureManifest)

	plan, err := BuildPlan([]diagnostics.Finding{
		{Kind: diagnostics.UnknownIgnore, File: path, Dep: "ghost"},
		{Kind: diagnostics.UnlinkedFiles, File: path, Paths: []string{"src/orphan.rs"}},
	}, map[string]*manifest.Manifest{path: m})
	require.NoError(t, err)

	res, err := plan.Apply(true)
	require.NoError(t, err)
	assert.Zero(t, res.Fixed)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixtureManifest, string(raw))
}

func TestUnknownDependencyError(t *testing.T) {
	t.Parallel()

	path, m := writeFixture(t, fixtureManifest)

	_, err := BuildPlan([]diagnostics.Finding{
		{Kind: diagnostics.UnusedDependency, File: path, Dep: "nonexistent", Location: normalLoc()},
	}, map[string]*manifest.Manifest{path: m})
	require.ErrorIs(t, err, ErrUnknownDependency)
}

func TestArrayItemExtent(t *testing.T) {
	t.Parallel()

	raw := []byte(`x = ["a", "b", "c"]`)

	// Middle item eats its trailing comma.
	mid := arrayItemExtent(raw, manifest.Span{Start: 10, End: 13})
	assert.Equal(t, `"b", `, string(raw[mid.Start:mid.End]))

	// Last item eats the leading comma instead.
	last := arrayItemExtent(raw, manifest.Span{Start: 15, End: 18})
	assert.Equal(t, `, "c"`, string(raw[last.Start:last.End]))
}

func TestLineExtent(t *testing.T) {
	t.Parallel()

	raw := []byte("a = 1\nb = 2\nc = 3")
	ext := lineExtent(raw, manifest.Span{Start: 6, End: 11})
	assert.Equal(t, "b = 2\n", string(raw[ext.Start:ext.End]))
}
