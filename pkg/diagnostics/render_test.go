//nolint:testpackage // exercises unexported position helpers.
package diagnostics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Boshen/cargo-shear-sub000/pkg/manifest"
)

func sampleFindings() []Finding {
	return []Finding{
		{
			Kind:     UnusedDependency,
			File:     "crates/app/Cargo.toml",
			Span:     manifest.Span{Start: 24, End: 37},
			Dep:      "tempfile",
			Location: manifest.DepLocation{Table: manifest.DepNormal},
		},
		{
			Kind:  UnlinkedFiles,
			File:  "crates/app/Cargo.toml",
			Paths: []string{"src/orphan.rs", "src/old/mod.rs"},
		},
	}
}

func TestTerminalRender(t *testing.T) {
	color.NoColor = true //nolint:reassign // deterministic test output

	src := []byte("[dependencies]\nserde = \"1\"\ntempfile = \"3\"\n")
	r := &TerminalRenderer{Sources: map[string][]byte{"crates/app/Cargo.toml": src}}

	findings := sampleFindings()
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, findings, Summarize(findings, 0), Stats{}))

	out := buf.String()
	assert.Contains(t, out, "error[shear/unused_dependency]")
	assert.Contains(t, out, "--> crates/app/Cargo.toml:2:10")
	assert.Contains(t, out, "├── src/orphan.rs")
	assert.Contains(t, out, "└── src/old/mod.rs")
	// StyleLight upper-cases header cells.
	assert.Contains(t, out, "FIXED")
}

func TestTerminalRenderVerboseFooter(t *testing.T) {
	color.NoColor = true //nolint:reassign // deterministic test output

	r := &TerminalRenderer{Verbose: true}

	var buf bytes.Buffer
	stats := Stats{Packages: 3, Dependencies: 1234, Files: 56, Elapsed: 1500 * time.Millisecond}
	require.NoError(t, r.Render(&buf, nil, Summary{}, stats))

	assert.Contains(t, buf.String(), "checked 1,234 dependencies in 3 packages (56 files) in 1.5s")
}

func TestJSONRender(t *testing.T) {
	t.Parallel()

	findings := sampleFindings()

	var buf bytes.Buffer
	require.NoError(t, (&JSONRenderer{}).Render(&buf, findings, Summarize(findings, 2), Stats{}))

	var doc struct {
		Summary  Summary `json:"summary"`
		Findings []struct {
			Code     string `json:"code"`
			Severity string `json:"severity"`
			File     string `json:"file"`
			Location *struct {
				Offset uint `json:"offset"`
				Length uint `json:"length"`
			} `json:"location"`
			Fixable bool `json:"fixable"`
		} `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, 2, doc.Summary.Fixed)
	require.Len(t, doc.Findings, 2)
	assert.Equal(t, "shear/unused_dependency", doc.Findings[0].Code)
	assert.Equal(t, "error", doc.Findings[0].Severity)
	require.NotNil(t, doc.Findings[0].Location)
	assert.Equal(t, uint(24), doc.Findings[0].Location.Offset)
	assert.Equal(t, uint(13), doc.Findings[0].Location.Length)
	assert.True(t, doc.Findings[0].Fixable)
	assert.Nil(t, doc.Findings[1].Location)
}

func TestYAMLRender(t *testing.T) {
	t.Parallel()

	findings := sampleFindings()

	var buf bytes.Buffer
	require.NoError(t, (&YAMLRenderer{}).Render(&buf, findings, Summarize(findings, 0), Stats{}))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Contains(t, doc, "summary")
	assert.Contains(t, doc, "findings")
}

func TestNewRendererSelection(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer("auto", nil, false)
	require.NoError(t, err)
	assert.IsType(t, &TerminalRenderer{}, r)

	r, err = NewRenderer("json", nil, false)
	require.NoError(t, err)
	assert.IsType(t, &JSONRenderer{}, r)

	r, err = NewRenderer("yaml", nil, false)
	require.NoError(t, err)
	assert.IsType(t, &YAMLRenderer{}, r)

	_, err = NewRenderer("xml", nil, false)
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseColorMode(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]ColorMode{
		"":       ColorAuto,
		"auto":   ColorAuto,
		"always": ColorAlways,
		"never":  ColorNever,
	} {
		got, err := ParseColorMode(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseColorMode("rainbow")
	require.Error(t, err)
}

func TestLineCol(t *testing.T) {
	t.Parallel()

	raw := []byte("abc\ndef\nghi")

	line, col := lineCol(raw, 0)
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)

	line, col = lineCol(raw, 5)
	assert.Equal(t, 2, line)
	assert.Equal(t, 2, col)

	line, col = lineCol(raw, 9)
	assert.Equal(t, 3, line)
	assert.Equal(t, 2, col)
}

func TestRenderFindingHelp(t *testing.T) {
	color.NoColor = true //nolint:reassign // deterministic test output

	f := Finding{
		Kind:     MisplacedDependency,
		File:     "Cargo.toml",
		Dep:      "insta",
		Location: manifest.DepLocation{Table: manifest.DepNormal},
	}

	var buf bytes.Buffer
	r := &TerminalRenderer{}
	require.NoError(t, r.renderFinding(&buf, &f))

	lines := strings.Split(buf.String(), "\n")
	var hasHelp bool

	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "help:") {
			hasHelp = true
		}
	}

	assert.True(t, hasHelp)
}
