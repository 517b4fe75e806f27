// Package diagnostics defines the finding model the analysis produces and
// the renderers that present it. Every finding is one tagged value; code,
// severity, label and fixability are pure functions of the tag so renderers
// and the fix pass never disagree.
package diagnostics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Boshen/cargo-shear-sub000/pkg/manifest"
)

// Kind tags the diagnostic variants.
type Kind uint8

// Diagnostic kinds.
const (
	UnusedDependency Kind = iota
	UnusedWorkspaceDependency
	UnusedOptionalDependency
	UnusedFeatureDependency
	MisplacedDependency
	MisplacedOptionalDependency
	UnlinkedFiles
	EmptyFiles
	UnknownIgnore
	RedundantIgnore
	RedundantIgnorePath
)

// Severity orders findings by weight. Errors fail the run.
type Severity uint8

// Severities, ascending.
const (
	SeverityAdvice Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "advice"
	}
}

// Code returns the stable machine-readable identifier of the kind.
func (k Kind) Code() string {
	switch k {
	case UnusedDependency:
		return "shear/unused_dependency"
	case UnusedWorkspaceDependency:
		return "shear/unused_workspace_dependency"
	case UnusedOptionalDependency:
		return "shear/unused_optional_dependency"
	case UnusedFeatureDependency:
		return "shear/unused_feature_dependency"
	case MisplacedDependency:
		return "shear/misplaced_dependency"
	case MisplacedOptionalDependency:
		return "shear/misplaced_optional_dependency"
	case UnlinkedFiles:
		return "shear/unlinked_files"
	case EmptyFiles:
		return "shear/empty_files"
	case UnknownIgnore:
		return "shear/unknown_ignore"
	case RedundantIgnore:
		return "shear/redundant_ignore"
	case RedundantIgnorePath:
		return "shear/redundant_ignore_path"
	default:
		return "shear/unknown"
	}
}

// Severity returns the weight of the kind.
func (k Kind) Severity() Severity {
	switch k {
	case UnusedDependency, UnusedWorkspaceDependency, MisplacedDependency, MisplacedOptionalDependency:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// Fixable reports whether the fix pass can resolve the kind automatically.
func (k Kind) Fixable() bool {
	switch k {
	case UnusedDependency, UnusedWorkspaceDependency, UnusedOptionalDependency,
		UnusedFeatureDependency, MisplacedDependency, MisplacedOptionalDependency:
		return true
	default:
		return false
	}
}

// Label is the short annotation rendered at the finding's span.
func (k Kind) Label() string {
	switch k {
	case UnusedDependency, UnusedWorkspaceDependency, UnusedOptionalDependency, UnusedFeatureDependency:
		return "declared here"
	case MisplacedDependency, MisplacedOptionalDependency:
		return "declared in the wrong table"
	case UnknownIgnore, RedundantIgnore, RedundantIgnorePath:
		return "configured here"
	default:
		return ""
	}
}

// Related is an advisory attached to a finding, optionally pointing at its
// own span in the same file.
type Related struct {
	Message string
	Span    manifest.Span
}

// Finding is one diagnostic. Immutable once built.
type Finding struct {
	Kind Kind

	// File is the manifest the finding points into, empty for file-group
	// findings.
	File string
	Span manifest.Span

	// Dep names the dependency or ignore entry concerned.
	Dep string

	// Location is the declaring table, used by messages and the fix pass.
	Location manifest.DepLocation

	// Paths lists the files of an UnlinkedFiles/EmptyFiles group, relative
	// to the workspace root.
	Paths []string

	Related []Related
}

// Message renders the human-readable description.
func (f Finding) Message() string {
	switch f.Kind {
	case UnusedDependency:
		return fmt.Sprintf("dependency `%s` is declared but never used", f.Dep)
	case UnusedWorkspaceDependency:
		return fmt.Sprintf("workspace dependency `%s` is not used by any member package", f.Dep)
	case UnusedOptionalDependency:
		return fmt.Sprintf("optional dependency `%s` is never imported", f.Dep)
	case UnusedFeatureDependency:
		return fmt.Sprintf("dependency `%s` is only referenced from feature values", f.Dep)
	case MisplacedDependency:
		return fmt.Sprintf("dependency `%s` is only used by dev targets", f.Dep)
	case MisplacedOptionalDependency:
		return fmt.Sprintf("optional dependency `%s` is only used by dev targets", f.Dep)
	case UnlinkedFiles:
		return fmt.Sprintf("%d source files are not reachable from any build target", len(f.Paths))
	case EmptyFiles:
		return fmt.Sprintf("%d linked source files contain no code", len(f.Paths))
	case UnknownIgnore:
		return fmt.Sprintf("ignored dependency `%s` is not declared in this manifest", f.Dep)
	case RedundantIgnore:
		return fmt.Sprintf("ignored dependency `%s` is used; the ignore entry has no effect", f.Dep)
	case RedundantIgnorePath:
		return fmt.Sprintf("ignored path pattern `%s` matches no files", f.Dep)
	default:
		return ""
	}
}

// Help renders the actionable suggestion, empty when there is none.
func (f Finding) Help() string {
	switch f.Kind {
	case UnusedDependency:
		return "remove this dependency"
	case UnusedWorkspaceDependency:
		return "remove this dependency from [workspace.dependencies]"
	case UnusedOptionalDependency:
		return "remove this dependency and the feature values referencing it"
	case UnusedFeatureDependency:
		return "remove this dependency and the feature values referencing it"
	case MisplacedDependency:
		return fmt.Sprintf("move this dependency to %s", f.Location.Dev())
	case MisplacedOptionalDependency:
		return fmt.Sprintf("remove the `optional` flag and move this dependency to %s", f.Location.Dev())
	case UnlinkedFiles:
		return "delete these files or declare them as modules"
	case EmptyFiles:
		return "delete these files or remove their module declarations"
	case UnknownIgnore, RedundantIgnore, RedundantIgnorePath:
		return "remove this entry from the ignored list"
	default:
		return ""
	}
}

// Sort orders findings deterministically: by file, then span, then code.
// Parallel analysis completes in arbitrary order; rendering must not.
func Sort(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]

		if a.File != b.File {
			return a.File < b.File
		}

		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}

		if a.Kind.Code() != b.Kind.Code() {
			return a.Kind.Code() < b.Kind.Code()
		}

		return strings.Join(a.Paths, "\x00") < strings.Join(b.Paths, "\x00")
	})
}

// Summary aggregates severity counts for rendering and exit-code logic.
type Summary struct {
	Errors   int `json:"errors"   yaml:"errors"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Fixed    int `json:"fixed"    yaml:"fixed"`
}

// Summarize counts findings by severity. Fixed is supplied by the fix pass.
func Summarize(findings []Finding, fixed int) Summary {
	s := Summary{Fixed: fixed}

	for _, f := range findings {
		switch f.Kind.Severity() {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		case SeverityAdvice:
		}
	}

	return s
}

// HasErrors reports whether any error-severity finding remains.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Kind.Severity() == SeverityError {
			return true
		}
	}

	return false
}
