// Package manifestedit applies the fix pass: removing unused dependency
// declarations, pruning feature values that reference them, and moving
// misplaced dependencies to their dev table. All edits are span-based text
// surgery on the raw manifest, so unrelated formatting, comments and key
// ordering survive byte-for-byte.
package manifestedit

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/Boshen/cargo-shear-sub000/pkg/diagnostics"
	"github.com/Boshen/cargo-shear-sub000/pkg/manifest"
)

// ErrUnknownDependency reports a finding naming a dependency the manifest
// model no longer contains.
var ErrUnknownDependency = errors.New("manifestedit: dependency not found in manifest")

// edit is one span replacement. Deletions use empty text; insertions use a
// collapsed span.
type edit struct {
	span manifest.Span
	text string
}

// fileEdits accumulates the edits of one manifest.
type fileEdits struct {
	m     *manifest.Manifest
	edits []edit
	fixed int
}

// Plan holds the pending edits per manifest path.
type Plan struct {
	files map[string]*fileEdits
}

// Result summarizes an applied plan.
type Result struct {
	// Fixed counts findings resolved by the edits.
	Fixed int

	// Diffs maps manifest paths to unified-style diffs, populated in
	// dry-run mode.
	Diffs map[string]string
}

// BuildPlan converts fixable findings into concrete edits. manifests maps
// each manifest path to its parsed model.
func BuildPlan(findings []diagnostics.Finding, manifests map[string]*manifest.Manifest) (*Plan, error) {
	plan := &Plan{files: make(map[string]*fileEdits)}

	for _, f := range findings {
		if !f.Kind.Fixable() {
			continue
		}

		m, ok := manifests[f.File]
		if !ok {
			return nil, fmt.Errorf("manifestedit: no manifest model for %s", f.File)
		}

		fe := plan.files[f.File]
		if fe == nil {
			fe = &fileEdits{m: m}
			plan.files[f.File] = fe
		}

		if err := fe.addFinding(f); err != nil {
			return nil, err
		}
	}

	return plan, nil
}

func (fe *fileEdits) addFinding(f diagnostics.Finding) error {
	switch f.Kind {
	case diagnostics.UnusedDependency, diagnostics.UnusedOptionalDependency,
		diagnostics.UnusedFeatureDependency:
		d, ok := findDependency(fe.m.Dependencies, f.Dep, f.Location)
		if !ok {
			return fmt.Errorf("%w: %s in %s", ErrUnknownDependency, f.Dep, fe.m.Path)
		}

		fe.removeDependency(d)
	case diagnostics.UnusedWorkspaceDependency:
		d, ok := findDependency(fe.m.WorkspaceDependencies, f.Dep, f.Location)
		if !ok {
			return fmt.Errorf("%w: %s in %s", ErrUnknownDependency, f.Dep, fe.m.Path)
		}

		fe.removeDependency(d)
	case diagnostics.MisplacedDependency, diagnostics.MisplacedOptionalDependency:
		d, ok := findDependency(fe.m.Dependencies, f.Dep, f.Location)
		if !ok {
			return fmt.Errorf("%w: %s in %s", ErrUnknownDependency, f.Dep, fe.m.Path)
		}

		fe.moveToDev(d)
	default:
		return nil
	}

	fe.fixed++

	return nil
}

func findDependency(deps []manifest.Dependency, key string, loc manifest.DepLocation) (manifest.Dependency, bool) {
	for _, d := range deps {
		if d.Key == key && d.Location == loc {
			return d, true
		}
	}

	return manifest.Dependency{}, false
}

// removeDependency deletes the declaration's lines and prunes every feature
// value referencing the dependency.
func (fe *fileEdits) removeDependency(d manifest.Dependency) {
	fe.edits = append(fe.edits, edit{span: lineExtent(fe.m.Raw, d.Span)})
	fe.pruneFeatureValues(d.Key)
}

func (fe *fileEdits) pruneFeatureValues(dep string) {
	want := manifest.NormalizeName(dep)

	for _, feat := range fe.m.Features {
		for _, ref := range feat.Refs {
			if manifest.NormalizeName(ref.Dep) != want {
				continue
			}

			fe.edits = append(fe.edits, edit{span: arrayItemExtent(fe.m.Raw, ref.ValueSpan)})
		}
	}
}

var optionalFlagRe = regexp.MustCompile(`(,\s*optional\s*=\s*true|optional\s*=\s*true\s*,?\s*)`)

// moveToDev deletes the declaration from its table and re-adds it under the
// matching dev-dependencies table, creating the table when absent. The
// optional flag is dropped in the move: dev-dependencies cannot be
// optional.
func (fe *fileEdits) moveToDev(d manifest.Dependency) {
	raw := fe.m.Raw
	extent := lineExtent(raw, d.Span)
	fe.edits = append(fe.edits, edit{span: extent})

	decl := declarationText(raw, d)
	if d.Optional {
		decl = strings.TrimSpace(optionalFlagRe.ReplaceAllString(decl, ""))
	}

	fe.insertIntoDev(d.Location.Dev(), decl)
	fe.pruneFeatureValuesIfOptional(d)
}

func (fe *fileEdits) pruneFeatureValuesIfOptional(d manifest.Dependency) {
	if d.Optional {
		fe.pruneFeatureValues(d.Key)
	}
}

// declarationText renders the dependency as a single pair line, unfolding a
// header-table declaration into inline form.
func declarationText(raw []byte, d manifest.Dependency) string {
	text := strings.TrimSpace(string(raw[d.Span.Start:d.Span.End]))

	if !strings.HasPrefix(text, "[") {
		return text
	}

	// [dependencies.foo] form: re-render the pairs as an inline table.
	var pairs []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") || strings.HasPrefix(line, "#") {
			continue
		}

		pairs = append(pairs, line)
	}

	return fmt.Sprintf("%s = { %s }", d.Key, strings.Join(pairs, ", "))
}

// insertIntoDev appends decl to the dev table at loc, creating the table at
// the end of the document when it does not exist.
func (fe *fileEdits) insertIntoDev(loc manifest.DepLocation, decl string) {
	if tab, ok := devTableEntry(fe.m.Doc(), loc); ok {
		at := tab.Span.End
		fe.edits = append(fe.edits, edit{
			span: manifest.Span{Start: at, End: at},
			text: "\n" + decl,
		})

		return
	}

	end := uint(len(fe.m.Raw))
	text := "\n" + loc.String() + "\n" + decl + "\n"

	if end > 0 && fe.m.Raw[end-1] != '\n' {
		text = "\n" + text
	}

	fe.edits = append(fe.edits, edit{span: manifest.Span{Start: end, End: end}, text: text})
}

func devTableEntry(doc *manifest.Table, loc manifest.DepLocation) (*manifest.Entry, bool) {
	if loc.IsRoot() {
		e := doc.Entry(loc.Table.String())
		if e != nil && !e.Span.IsZero() {
			return e, true
		}

		return nil, false
	}

	targets := doc.Table("target")
	if targets == nil {
		return nil, false
	}

	cfg := targets.Table(loc.Cfg)
	if cfg == nil {
		return nil, false
	}

	e := cfg.Entry(loc.Table.String())
	if e != nil && !e.Span.IsZero() {
		return e, true
	}

	return nil, false
}

// Apply executes the plan. With write set, edited manifests are rewritten
// in place; otherwise Result.Diffs carries what would change.
func (p *Plan) Apply(write bool) (Result, error) {
	res := Result{Diffs: make(map[string]string)}

	paths := make([]string, 0, len(p.files))
	for path := range p.files {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	for _, path := range paths {
		fe := p.files[path]
		if len(fe.edits) == 0 {
			continue
		}

		edited := applyEdits(fe.m.Raw, fe.edits)

		if write {
			if err := os.WriteFile(path, edited, 0o644); err != nil { //nolint:gosec,mnd // manifests are world-readable
				return res, fmt.Errorf("manifestedit: write %s: %w", path, err)
			}
		} else {
			res.Diffs[path] = unifiedDiff(string(fe.m.Raw), string(edited))
		}

		res.Fixed += fe.fixed
	}

	return res, nil
}

// applyEdits replaces spans back to front so earlier offsets stay valid.
// Overlapping deletions collapse into the widest one.
func applyEdits(raw []byte, edits []edit) []byte {
	sorted := make([]edit, len(edits))
	copy(sorted, edits)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].span.Start != sorted[j].span.Start {
			return sorted[i].span.Start > sorted[j].span.Start
		}

		return sorted[i].span.End > sorted[j].span.End
	})

	out := append([]byte(nil), raw...)

	var lastStart uint = ^uint(0)

	for _, e := range sorted {
		if e.span.End > lastStart {
			continue // swallowed by a wider edit already applied
		}

		if e.span.End > uint(len(out)) {
			continue
		}

		out = append(out[:e.span.Start], append([]byte(e.text), out[e.span.End:]...)...)
		lastStart = e.span.Start
	}

	return out
}

// lineExtent widens a span to full lines, trailing newline included.
func lineExtent(raw []byte, s manifest.Span) manifest.Span {
	start := s.Start
	for start > 0 && raw[start-1] != '\n' {
		start--
	}

	end := s.End
	for end < uint(len(raw)) && raw[end] != '\n' {
		end++
	}

	if end < uint(len(raw)) {
		end++
	}

	return manifest.Span{Start: start, End: end}
}

// arrayItemExtent widens a value span to swallow one adjacent comma and the
// whitespace around it.
func arrayItemExtent(raw []byte, s manifest.Span) manifest.Span {
	start, end := s.Start, s.End

	// Prefer eating the trailing comma.
	i := end
	for i < uint(len(raw)) && (raw[i] == ' ' || raw[i] == '\t') {
		i++
	}

	if i < uint(len(raw)) && raw[i] == ',' {
		i++

		for i < uint(len(raw)) && (raw[i] == ' ' || raw[i] == '\t') {
			i++
		}

		return manifest.Span{Start: start, End: i}
	}

	// Last item: eat the leading comma instead.
	j := start
	for j > 0 && (raw[j-1] == ' ' || raw[j-1] == '\t' || raw[j-1] == '\n') {
		j--
	}

	if j > 0 && raw[j-1] == ',' {
		return manifest.Span{Start: j - 1, End: end}
	}

	return manifest.Span{Start: start, End: end}
}
