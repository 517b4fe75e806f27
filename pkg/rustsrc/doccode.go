package rustsrc

import (
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// collectDoc appends the text of a documentation comment to the file's
// markdown buffer. Ordinary comments are skipped.
func (w *walker) collectDoc(n sitter.Node) {
	if w.snippet {
		return
	}

	text := n.Content(w.src)

	switch {
	case strings.HasPrefix(text, "///") || strings.HasPrefix(text, "//!"):
		line := strings.TrimPrefix(text[3:], " ")
		w.docs.WriteString(line)
		w.docs.WriteByte('\n')
	case strings.HasPrefix(text, "/**") || strings.HasPrefix(text, "/*!"):
		body := strings.TrimSuffix(text[3:], "*/")

		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			line = strings.TrimPrefix(line, "*")
			line = strings.TrimPrefix(line, " ")

			w.docs.WriteString(line)
			w.docs.WriteByte('\n')
		}
	}
}

// processDocs extracts code samples from the accumulated documentation and
// merges their imports into the file's result. Doc samples count as real
// usage: a crate referenced only from an example is still a dependency.
func (w *walker) processDocs() {
	if w.docs.Len() == 0 {
		return
	}

	for _, block := range markdownCodeBlocks(w.docs.String()) {
		snippet := stripHiddenLines(block)
		if strings.TrimSpace(snippet) == "" {
			continue
		}

		w.mergeSnippetImports(snippet)
	}
}

const (
	minFenceLen  = 3
	indentSpaces = 4
)

// markdownCodeBlocks returns fenced blocks whose info string marks them as
// compilable Rust (untagged, rust, ignore, no_run, should_panic, edition
// tags), plus indented code blocks, which are untagged by construction.
func markdownCodeBlocks(md string) []string {
	var (
		blocks    []string
		cur       []string
		inFence   bool
		fenceRune byte
		fenceLen  int
		accepted  bool
		indented  []string
	)

	flushIndented := func() {
		if len(indented) > 0 {
			blocks = append(blocks, strings.Join(indented, "\n"))
			indented = nil
		}
	}

	for _, line := range strings.Split(md, "\n") {
		if inFence {
			if isClosingFence(line, fenceRune, fenceLen) {
				if accepted {
					blocks = append(blocks, strings.Join(cur, "\n"))
				}

				inFence = false
				cur = nil

				continue
			}

			cur = append(cur, line)

			continue
		}

		if r, n, info, ok := openingFence(line); ok {
			flushIndented()

			inFence = true
			fenceRune, fenceLen = r, n
			accepted = rustInfoString(info)

			continue
		}

		if isIndentedCode(line) {
			indented = append(indented, trimIndent(line))

			continue
		}

		if strings.TrimSpace(line) != "" {
			flushIndented()
		}
	}

	// An unterminated fence still counts; rustdoc tolerates it.
	if inFence && accepted {
		blocks = append(blocks, strings.Join(cur, "\n"))
	}

	flushIndented()

	return blocks
}

func openingFence(line string) (r byte, n int, info string, ok bool) {
	trimmed := strings.TrimLeft(line, " ")
	if len(trimmed) < minFenceLen {
		return 0, 0, "", false
	}

	c := trimmed[0]
	if c != '`' && c != '~' {
		return 0, 0, "", false
	}

	n = 0
	for n < len(trimmed) && trimmed[n] == c {
		n++
	}

	if n < minFenceLen {
		return 0, 0, "", false
	}

	return c, n, strings.TrimSpace(trimmed[n:]), true
}

func isClosingFence(line string, r byte, minLen int) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < minLen {
		return false
	}

	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] != r {
			return false
		}
	}

	return true
}

func isIndentedCode(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}

	return strings.HasPrefix(line, strings.Repeat(" ", indentSpaces)) ||
		strings.HasPrefix(line, "\t")
}

func trimIndent(line string) string {
	if strings.HasPrefix(line, "\t") {
		return line[1:]
	}

	return strings.TrimPrefix(line, strings.Repeat(" ", indentSpaces))
}

// rustInfoString reports whether a fence info string denotes Rust code that
// rustdoc would compile.
func rustInfoString(info string) bool {
	if info == "" {
		return true
	}

	for _, tag := range strings.FieldsFunc(info, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		switch tag {
		case "rust", "ignore", "no_run", "should_panic":
		default:
			if !strings.HasPrefix(tag, "edition") {
				return false
			}
		}
	}

	return true
}

// stripHiddenLines removes rustdoc's hidden-line markers while keeping the
// line content, which still compiles as part of the doctest.
func stripHiddenLines(block string) string {
	lines := strings.Split(block, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")

		switch {
		case trimmed == "#":
			out = append(out, "")
		case strings.HasPrefix(trimmed, "# "):
			out = append(out, strings.TrimPrefix(trimmed, "# "))
		case strings.HasPrefix(trimmed, "#") &&
			!strings.HasPrefix(trimmed, "#[") && !strings.HasPrefix(trimmed, "#!"):
			// "#use x;" style, no space after the marker.
			out = append(out, trimmed[1:])
		default:
			out = append(out, line)
		}
	}

	return strings.Join(out, "\n")
}
