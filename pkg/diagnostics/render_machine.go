package diagnostics

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// reportLocation is the span of a finding in machine output.
type reportLocation struct {
	Offset uint `json:"offset" yaml:"offset"`
	Length uint `json:"length" yaml:"length"`
}

// reportFinding is the machine-readable shape of one finding.
type reportFinding struct {
	Code     string          `json:"code"               yaml:"code"`
	Severity string          `json:"severity"           yaml:"severity"`
	Message  string          `json:"message"            yaml:"message"`
	File     string          `json:"file"               yaml:"file"`
	Location *reportLocation `json:"location,omitempty" yaml:"location,omitempty"`
	Paths    []string        `json:"paths,omitempty"    yaml:"paths,omitempty"`
	Help     string          `json:"help,omitempty"     yaml:"help,omitempty"`
	Fixable  bool            `json:"fixable"            yaml:"fixable"`
}

// report is the top-level machine output document.
type report struct {
	Summary  Summary         `json:"summary"  yaml:"summary"`
	Findings []reportFinding `json:"findings" yaml:"findings"`
}

func buildReport(findings []Finding, summary Summary) report {
	out := report{Summary: summary, Findings: make([]reportFinding, 0, len(findings))}

	for i := range findings {
		f := &findings[i]

		rf := reportFinding{
			Code:     f.Kind.Code(),
			Severity: f.Kind.Severity().String(),
			Message:  f.Message(),
			File:     f.File,
			Paths:    f.Paths,
			Help:     f.Help(),
			Fixable:  f.Kind.Fixable(),
		}
		if !f.Span.IsZero() {
			rf.Location = &reportLocation{Offset: f.Span.Start, Length: f.Span.Len()}
		}

		out.Findings = append(out.Findings, rf)
	}

	return out
}

// JSONRenderer emits the report as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(w io.Writer, findings []Finding, summary Summary, _ Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(buildReport(findings, summary)); err != nil {
		return fmt.Errorf("diagnostics: encode json report: %w", err)
	}

	return nil
}

// YAMLRenderer emits the report as YAML.
type YAMLRenderer struct{}

func (r *YAMLRenderer) Render(w io.Writer, findings []Finding, summary Summary, _ Stats) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()

	if err := enc.Encode(buildReport(findings, summary)); err != nil {
		return fmt.Errorf("diagnostics: encode yaml report: %w", err)
	}

	return nil
}
