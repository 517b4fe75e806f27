// Package manifest parses Cargo manifests into a typed, span-annotated
// model. Every dependency key, feature key and feature value keeps its byte
// offsets in the raw document so diagnostics and the manifest editor can
// point at exact locations without re-scanning the text.
package manifest

import (
	"fmt"
	"strings"
)

// DepTable is the build profile a dependency entry belongs to.
type DepTable uint8

// Build profiles, in manifest table order.
const (
	DepNormal DepTable = iota
	DepDev
	DepBuild
)

// String returns the manifest table name for the profile.
func (t DepTable) String() string {
	switch t {
	case DepDev:
		return "dev-dependencies"
	case DepBuild:
		return "build-dependencies"
	default:
		return "dependencies"
	}
}

// DepLocation records where in the manifest a dependency is declared: a
// root-level table, or one nested under a target configuration.
type DepLocation struct {
	Cfg   string // target cfg expression, empty for root tables
	Table DepTable
}

// IsRoot reports whether the location is a root-level table.
func (l DepLocation) IsRoot() bool { return l.Cfg == "" }

// String renders the location as it appears in manifest headers.
func (l DepLocation) String() string {
	if l.IsRoot() {
		return fmt.Sprintf("[%s]", l.Table)
	}

	return fmt.Sprintf("[target.%q.%s]", l.Cfg, l.Table)
}

// Dev returns the same location shifted to the dev-dependencies profile.
func (l DepLocation) Dev() DepLocation {
	return DepLocation{Cfg: l.Cfg, Table: DepDev}
}

// Dependency is one declared dependency entry.
type Dependency struct {
	Key      string // table key as written
	KeySpan  Span
	Span     Span   // full extent of the declaration
	Package  string // explicit package rename, empty when absent
	Optional bool
	Location DepLocation
}

// PackageName returns the name of the crate the entry resolves to.
func (d Dependency) PackageName() string {
	if d.Package != "" {
		return d.Package
	}

	return d.Key
}

// ImportName returns the identifier under which the dependency is referenced
// in source code: the rename override when present, else the key, normalized.
func (d Dependency) ImportName() string {
	if d.Package != "" {
		return NormalizeName(d.Package)
	}

	return NormalizeName(d.Key)
}

// NormalizeName maps a crate name onto its source-level identifier form.
func NormalizeName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// FeatureRefKind classifies how a feature value relates to a dependency.
type FeatureRefKind uint8

// Feature reference kinds.
const (
	// FeatureImplicit is the feature cargo synthesizes for an optional
	// dependency that no feature wires up with dep: syntax.
	FeatureImplicit FeatureRefKind = iota
	// FeatureExplicit covers dep:name values and bare name values.
	FeatureExplicit
	// FeatureDepFeature covers name/feature values.
	FeatureDepFeature
	// FeatureWeakDepFeature covers name?/feature values.
	FeatureWeakDepFeature
)

// FeatureRef is one feature-table value that mentions a dependency.
type FeatureRef struct {
	Kind        FeatureRefKind
	Feature     string // feature key the value lives under
	FeatureSpan Span
	Value       string // value text as written
	ValueSpan   Span
	Dep         string // referenced dependency name
}

// Enables reports whether the reference alone can activate the dependency
// (dep: wiring, a bare name, or the implicit feature). Sub-feature values
// (name/feature, name?/feature) cannot make an otherwise-unused dependency
// reachable by importing.
func (r FeatureRef) Enables() bool {
	switch r.Kind {
	case FeatureDepFeature, FeatureWeakDepFeature:
		return false
	default:
		return true
	}
}

const depPrefix = "dep:"

// classifyFeatureRef parses one feature value into a FeatureRef.
func classifyFeatureRef(feature string, fspan Span, value string, vspan Span) FeatureRef {
	ref := FeatureRef{
		Feature:     feature,
		FeatureSpan: fspan,
		Value:       value,
		ValueSpan:   vspan,
	}

	switch {
	case strings.HasPrefix(value, depPrefix):
		ref.Kind = FeatureExplicit
		ref.Dep = strings.TrimPrefix(value, depPrefix)
	case strings.Contains(value, "/"):
		dep, _, _ := strings.Cut(value, "/")
		if strings.HasSuffix(dep, "?") {
			ref.Kind = FeatureWeakDepFeature
			ref.Dep = strings.TrimSuffix(dep, "?")
		} else {
			ref.Kind = FeatureDepFeature
			ref.Dep = dep
		}
	default:
		ref.Kind = FeatureExplicit
		ref.Dep = value
	}

	return ref
}

// Feature is one entry of the [features] table.
type Feature struct {
	Name string
	Span Span
	Refs []FeatureRef
}

// IgnoreEntry is one configured ignore value with its span.
type IgnoreEntry struct {
	Name string
	Span Span
}

// IgnoreConfig is the tool configuration read from
// [package.metadata.cargo-shear] or [workspace.metadata.cargo-shear].
type IgnoreConfig struct {
	Deps  []IgnoreEntry // ignored dependency names
	Paths []IgnoreEntry // ignored path globs
}

// IsZero reports whether no ignores are configured.
func (c IgnoreConfig) IsZero() bool { return len(c.Deps) == 0 && len(c.Paths) == 0 }

// Manifest is the parsed model of one Cargo.toml.
type Manifest struct {
	Path        string
	Raw         []byte
	PackageName string

	// Dependencies holds every dependency declaration across all root and
	// target tables, in document order.
	Dependencies []Dependency

	// WorkspaceDependencies holds entries of [workspace.dependencies].
	WorkspaceDependencies []Dependency

	Features []Feature

	Ignore          IgnoreConfig // package-level tool config
	WorkspaceIgnore IgnoreConfig // workspace-level tool config

	doc      *Table
	implicit []FeatureRef
}

// Doc exposes the raw span-annotated document, for the manifest editor.
func (m *Manifest) Doc() *Table { return m.doc }

// HasWorkspaceDeps reports whether a [workspace.dependencies] table exists.
func (m *Manifest) HasWorkspaceDeps() bool {
	ws := m.doc.Table("workspace")

	return ws != nil && ws.Entry("dependencies") != nil
}

// RefsFor returns every feature reference mentioning the dependency,
// implicit features included.
func (m *Manifest) RefsFor(dep string) []FeatureRef {
	want := NormalizeName(dep)

	var refs []FeatureRef

	for _, f := range m.Features {
		for _, r := range f.Refs {
			if NormalizeName(r.Dep) == want {
				refs = append(refs, r)
			}
		}
	}

	for _, r := range m.implicit {
		if NormalizeName(r.Dep) == want {
			refs = append(refs, r)
		}
	}

	return refs
}

// Parse parses raw manifest text. It fails only on malformed TOML; missing
// tables simply yield empty model sections.
func Parse(path string, src []byte) (*Manifest, error) {
	doc, err := parseDoc(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m := &Manifest{Path: path, Raw: src, doc: doc}

	if pkg := doc.Table("package"); pkg != nil {
		m.PackageName, _ = pkg.Str("name")
		m.Ignore = readIgnoreConfig(pkg.Table("metadata"))
	}

	for _, table := range []DepTable{DepNormal, DepDev, DepBuild} {
		m.Dependencies = append(m.Dependencies,
			readDepTable(doc.Table(table.String()), DepLocation{Table: table})...)
	}

	if targets := doc.Table("target"); targets != nil {
		for _, cfg := range targets.Entries {
			if cfg.Value.Kind != KindTable {
				continue
			}

			for _, table := range []DepTable{DepNormal, DepDev, DepBuild} {
				m.Dependencies = append(m.Dependencies,
					readDepTable(cfg.Value.Tab.Table(table.String()),
						DepLocation{Cfg: cfg.Key, Table: table})...)
			}
		}
	}

	if ws := doc.Table("workspace"); ws != nil {
		m.WorkspaceDependencies = readDepTable(ws.Table("dependencies"),
			DepLocation{Table: DepNormal})
		m.WorkspaceIgnore = readIgnoreConfig(ws.Table("metadata"))
	}

	m.Features = readFeatures(doc.Table("features"))
	m.implicit = implicitRefs(m.Dependencies, m.Features)

	return m, nil
}

func readDepTable(tab *Table, loc DepLocation) []Dependency {
	if tab == nil {
		return nil
	}

	deps := make([]Dependency, 0, len(tab.Entries))

	for _, e := range tab.Entries {
		d := Dependency{
			Key:      e.Key,
			KeySpan:  e.KeySpan,
			Span:     e.Span,
			Location: loc,
		}

		if e.Value.Kind == KindTable {
			d.Package, _ = e.Value.Tab.Str("package")
			d.Optional, _ = e.Value.Tab.Bool("optional")
		}

		deps = append(deps, d)
	}

	return deps
}

func readFeatures(tab *Table) []Feature {
	if tab == nil {
		return nil
	}

	features := make([]Feature, 0, len(tab.Entries))

	for _, e := range tab.Entries {
		f := Feature{Name: e.Key, Span: e.KeySpan}

		if e.Value.Kind == KindArray {
			for _, item := range e.Value.Items {
				if item.Kind != KindString {
					continue
				}

				f.Refs = append(f.Refs,
					classifyFeatureRef(e.Key, e.KeySpan, item.Str, item.Span))
			}
		}

		features = append(features, f)
	}

	return features
}

// implicitRefs synthesizes the feature cargo creates for each optional
// dependency that no feature value wires up with dep: syntax.
func implicitRefs(deps []Dependency, features []Feature) []FeatureRef {
	explicit := make(map[string]bool)

	for _, f := range features {
		for _, r := range f.Refs {
			if strings.HasPrefix(r.Value, depPrefix) {
				explicit[NormalizeName(r.Dep)] = true
			}
		}
	}

	var refs []FeatureRef

	for _, d := range deps {
		if !d.Optional || explicit[NormalizeName(d.Key)] {
			continue
		}

		refs = append(refs, FeatureRef{
			Kind:        FeatureImplicit,
			Feature:     d.Key,
			FeatureSpan: d.KeySpan,
			Value:       d.Key,
			ValueSpan:   d.KeySpan,
			Dep:         d.Key,
		})
	}

	return refs
}

// readIgnoreConfig extracts tool configuration from a metadata table.
func readIgnoreConfig(metadata *Table) IgnoreConfig {
	var cfg IgnoreConfig

	tool := metadata.Table("cargo-shear")
	if tool == nil {
		return cfg
	}

	cfg.Deps = readIgnoreList(tool.Entry("ignored"))
	cfg.Paths = readIgnoreList(tool.Entry("ignored-paths"))

	return cfg
}

func readIgnoreList(e *Entry) []IgnoreEntry {
	if e == nil || e.Value.Kind != KindArray {
		return nil
	}

	entries := make([]IgnoreEntry, 0, len(e.Value.Items))

	for _, item := range e.Value.Items {
		if item.Kind != KindString {
			continue
		}

		entries = append(entries, IgnoreEntry{Name: item.Str, Span: item.Span})
	}

	return entries
}
