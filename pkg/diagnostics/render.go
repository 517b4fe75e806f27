package diagnostics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
)

// ErrUnknownFormat reports an unrecognized --format value.
var ErrUnknownFormat = errors.New("diagnostics: unknown output format")

// ColorMode controls ANSI escape emission.
type ColorMode int

const (
	// ColorAuto enables color when stdout is a terminal and NO_COLOR is
	// unset.
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// ParseColorMode parses a --color flag value.
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "auto", "":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("%w: color mode %q", ErrUnknownFormat, s)
	}
}

// Apply sets the process-wide color switch.
func (m ColorMode) Apply() {
	switch m {
	case ColorAlways:
		color.NoColor = false //nolint:reassign // intentional override of library global
	case ColorNever:
		color.NoColor = true //nolint:reassign // intentional override of library global
	case ColorAuto:
		_, noColorSet := os.LookupEnv("NO_COLOR")
		isTTY := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
		color.NoColor = noColorSet || !isTTY //nolint:reassign // intentional override of library global
	}
}

// Stats carries run-level numbers for the footer.
type Stats struct {
	Packages     int
	Dependencies int
	Files        int
	Elapsed      time.Duration
}

// Renderer writes findings and a summary in one output format.
type Renderer interface {
	Render(w io.Writer, findings []Finding, summary Summary, stats Stats) error
}

// NewRenderer selects a renderer for a --format value: "auto" (terminal
// text), "json" or "yaml".
func NewRenderer(format string, sources map[string][]byte, verbose bool) (Renderer, error) {
	switch format {
	case "auto", "":
		return &TerminalRenderer{Sources: sources, Verbose: verbose}, nil
	case "json":
		return &JSONRenderer{}, nil
	case "yaml":
		return &YAMLRenderer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// TerminalRenderer renders human-readable, optionally colored text.
// Sources maps manifest paths to their raw bytes so spans resolve to
// line:column positions.
type TerminalRenderer struct {
	Sources map[string][]byte
	Verbose bool
}

func severityColor(s Severity) *color.Color {
	switch s {
	case SeverityError:
		return color.New(color.FgRed, color.Bold)
	case SeverityWarning:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgCyan, color.Bold)
	}
}

// Render writes each finding followed by a summary table.
func (r *TerminalRenderer) Render(w io.Writer, findings []Finding, summary Summary, stats Stats) error {
	for i := range findings {
		if err := r.renderFinding(w, &findings[i]); err != nil {
			return err
		}
	}

	if err := renderSummaryTable(w, summary); err != nil {
		return err
	}

	if r.Verbose {
		fmt.Fprintf(w, "checked %s dependencies in %s packages (%s files) in %s\n",
			humanize.Comma(int64(stats.Dependencies)),
			humanize.Comma(int64(stats.Packages)),
			humanize.Comma(int64(stats.Files)),
			stats.Elapsed.Round(time.Millisecond))
	}

	return nil
}

func (r *TerminalRenderer) renderFinding(w io.Writer, f *Finding) error {
	sev := f.Kind.Severity()

	severityColor(sev).Fprintf(w, "%s[%s]", sev, f.Kind.Code())
	fmt.Fprintf(w, ": %s\n", f.Message())
	fmt.Fprintf(w, "  --> %s%s\n", f.File, r.position(f))

	for _, rel := range f.Related {
		fmt.Fprintf(w, "  note: %s\n", rel.Message)
	}

	renderPathTree(w, f.Paths)

	if help := f.Help(); help != "" {
		color.New(color.FgCyan).Fprintf(w, "  help: %s\n", help)
	}

	fmt.Fprintln(w)

	return nil
}

// position renders ":line:col" when the finding's span resolves into a
// known source file.
func (r *TerminalRenderer) position(f *Finding) string {
	raw, ok := r.Sources[f.File]
	if !ok || f.Span.IsZero() {
		return ""
	}

	line, col := lineCol(raw, f.Span.Start)

	return fmt.Sprintf(":%d:%d", line, col)
}

func lineCol(raw []byte, offset uint) (line, col int) {
	line, col = 1, 1

	for i := uint(0); i < offset && i < uint(len(raw)); i++ {
		if raw[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	return line, col
}

func renderPathTree(w io.Writer, paths []string) {
	for i, p := range paths {
		branch := "├──"
		if i == len(paths)-1 {
			branch = "└──"
		}

		fmt.Fprintf(w, "  %s %s\n", branch, p)
	}
}

func renderSummaryTable(w io.Writer, summary Summary) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Errors", "Warnings", "Fixed"})
	tbl.AppendRow(table.Row{summary.Errors, summary.Warnings, summary.Fixed})

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}
