package rustsrc

import (
	"path/filepath"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// token is one leaf of a macro or attribute token tree.
type token struct {
	typ  string
	text string
}

func (t token) isString() bool {
	return t.typ == "string_literal" || t.typ == "raw_string_literal"
}

func (t token) stringValue() (string, bool) {
	return decodeRustString(t.text)
}

func (t token) isSeparator() bool {
	return t.text == "::" || t.text == ":"
}

// tokenLeaves flattens a token tree into its leaf tokens. String literals
// stay intact rather than decomposing into quote and content pieces.
func tokenLeaves(n sitter.Node, src []byte) []token {
	var tokens []token

	var flatten func(n sitter.Node)

	flatten = func(n sitter.Node) {
		typ := n.Type()
		if typ == "string_literal" || typ == "raw_string_literal" || n.ChildCount() == 0 {
			tokens = append(tokens, token{typ: typ, text: n.Content(src)})

			return
		}

		for i := range n.ChildCount() {
			flatten(n.Child(i))
		}
	}

	flatten(n)

	return tokens
}

// Separator runs longer than this are noise, not a degenerate path.
const maxSeparatorRun = 3

// scanTokens records every identifier immediately followed by a path
// separator, plus identifiers opening an absolute path ("::foo"). The
// separator may arrive fused ("::"), split (":" ":"), or in a short
// syntax-error-tolerant run.
func (w *walker) scanTokens(tokens []token) {
	for i, t := range tokens {
		if t.typ != "identifier" {
			continue
		}

		if i > 0 && tokens[i-1].text == "::" {
			// A "::" not following an identifier opens an absolute path,
			// so this identifier is the root. Expanded output uses "::"
			// for hygiene paths, which must not count.
			if !w.expanded && (i == 1 || tokens[i-2].typ != "identifier") {
				w.candidate(t.text)
			}

			continue
		}

		run, colons, fused := 0, 0, false

		for j := i + 1; j < len(tokens) && tokens[j].isSeparator(); j++ {
			run++

			if tokens[j].text == "::" {
				fused = true
			} else {
				colons++
			}
		}

		if run == 0 || run > maxSeparatorRun {
			continue
		}

		if fused || colons >= 2 {
			w.candidate(t.text)
		}
	}
}

// scanTokenTree extracts crate references from a macro's argument tokens.
// Token trees are not guaranteed to be structured grammar, so three passes
// apply: the identifier-separator scan, include-path collection, and a
// re-parse of the tree text when it plainly contains item syntax the
// structured walker cannot see.
func (w *walker) scanTokenTree(n sitter.Node) {
	tokens := tokenLeaves(n, w.src)

	w.scanTokens(tokens)

	if !w.snippet {
		w.collectIncludePaths(tokens)
	}

	if containsItemKeyword(tokens) {
		w.reparseTokenText(n.Content(w.src))
	}
}

// rustStringValue decodes a string literal node.
func rustStringValue(n sitter.Node, src []byte) (string, bool) {
	switch n.Type() {
	case "string_literal", "raw_string_literal":
		return decodeRustString(n.Content(src))
	default:
		return "", false
	}
}

// collectIncludePaths records any string argument naming a source file, the
// include! convention.
func (w *walker) collectIncludePaths(tokens []token) {
	for _, t := range tokens {
		if !t.isString() {
			continue
		}

		value, ok := t.stringValue()
		if !ok || !strings.HasSuffix(value, ".rs") {
			continue
		}

		w.link(filepath.Join(w.fileDir, value))
	}
}

func containsItemKeyword(tokens []token) bool {
	for _, t := range tokens {
		switch t.text {
		case "use", "extern", "mod":
			return true
		}
	}

	return false
}

// reparseTokenText strips the outer delimiter pair and parses the interior
// as Rust, surfacing use declarations written inside macro bodies.
func (w *walker) reparseTokenText(text string) {
	text = strings.TrimSpace(text)
	if len(text) >= 2 {
		switch {
		case strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}"),
			strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")"),
			strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]"):
			text = text[1 : len(text)-1]
		}
	}

	w.mergeSnippetImports(text)
}

// mergeSnippetImports parses detached Rust text and merges its import roots
// into the current result. Parse errors trigger one retry with the text
// wrapped in a synthetic function body, since fragments are frequently bare
// statements.
func (w *walker) mergeSnippetImports(text string) {
	imports := snippetImports(text, w.expanded)

	for root := range imports {
		w.out.Imports[root] = struct{}{}
	}
}

func snippetImports(text string, expanded bool) map[string]struct{} {
	src := []byte(text)

	tree, ok := parseTree(src)
	if !ok {
		return nil
	}

	if treeHasError(tree.RootNode()) {
		tree.Close()

		src = []byte("fn main() {\n" + text + "\n}")

		tree, ok = parseTree(src)
		if !ok {
			return nil
		}
	}

	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil
	}

	sub := &walker{
		src:      src,
		out:      &Source{Imports: make(map[string]struct{})},
		expanded: expanded,
		snippet:  true,
	}

	sub.walkContainer(root, ".")

	return sub.out.Imports
}

func treeHasError(n sitter.Node) bool {
	if n.IsNull() {
		return true
	}

	if n.Type() == "ERROR" {
		return true
	}

	for i := range n.ChildCount() {
		if treeHasError(n.Child(i)) {
			return true
		}
	}

	return false
}

// decodeRustString returns the value of a plain or raw string literal.
func decodeRustString(text string) (string, bool) {
	if strings.HasPrefix(text, "r") {
		body := strings.TrimPrefix(text, "r")
		body = strings.Trim(body, "#")

		if len(body) < 2 || !strings.HasPrefix(body, `"`) || !strings.HasSuffix(body, `"`) {
			return "", false
		}

		return body[1 : len(body)-1], true
	}

	if len(text) < 2 || !strings.HasPrefix(text, `"`) || !strings.HasSuffix(text, `"`) {
		return "", false
	}

	return unescapeRust(text[1 : len(text)-1]), true
}

func unescapeRust(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var b strings.Builder

	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)

			continue
		}

		i++

		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}

	return b.String()
}
