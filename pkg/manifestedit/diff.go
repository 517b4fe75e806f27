package manifestedit

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// unifiedDiff renders a line-level diff between the original and edited
// manifest text, +/- prefixed, equal runs collapsed to context markers.
func unifiedDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	src, dst, lines := dmp.DiffLinesToRunes(before, after)
	diffs := dmp.DiffMainRunes(src, dst, false)
	diffs = dmp.DiffCleanupMerge(diffs)

	var b strings.Builder

	for _, d := range diffs {
		text := runesToLines(d.Text, lines)

		switch d.Type {
		case diffmatchpatch.DiffDelete:
			writePrefixed(&b, "-", text)
		case diffmatchpatch.DiffInsert:
			writePrefixed(&b, "+", text)
		case diffmatchpatch.DiffEqual:
			writeContext(&b, text)
		}
	}

	return b.String()
}

func runesToLines(text string, lines []string) []string {
	out := make([]string, 0, len(text))

	for _, r := range text {
		if int(r) < len(lines) {
			out = append(out, strings.TrimSuffix(lines[r], "\n"))
		}
	}

	return out
}

func writePrefixed(b *strings.Builder, prefix string, lines []string) {
	for _, line := range lines {
		b.WriteString(prefix)
		b.WriteString(" ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// contextLines bounds how many unchanged lines surround each hunk.
const contextLines = 2

func writeContext(b *strings.Builder, lines []string) {
	if len(lines) <= 2*contextLines+1 {
		for _, line := range lines {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}

		return
	}

	for _, line := range lines[:contextLines] {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("  ...\n")

	for _, line := range lines[len(lines)-contextLines:] {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}
