// Package rustsrc extracts external crate references from Rust source text.
// It walks the concrete syntax tree for import declarations, qualified
// paths, macro token trees, attribute arguments and documentation code
// samples, and additionally records module declarations so callers can
// compute file reachability.
package rustsrc

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/alexaandru/go-sitter-forest/rust"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

var rustLanguage = sitter.NewLanguage(rust.GetLanguage())

var parserPool = sync.Pool{
	New: func() any {
		parser := sitter.NewParser()
		parser.SetLanguage(rustLanguage)

		return parser
	},
}

// Source is the extraction result for one file. Immutable once returned.
type Source struct {
	Path string

	// Imports holds the normalized roots of every external reference.
	Imports map[string]struct{}

	// LinkedPaths holds candidate file paths reachable from this file via
	// mod declarations and include-style macros. Candidates are speculative:
	// a declaration yields every location the compiler would probe.
	LinkedPaths []string

	// Empty reports that the file has no items beyond comments.
	Empty bool
}

// Options control extraction for one file.
type Options struct {
	// EntryPoint marks build-target roots, whose mod declarations resolve
	// against the file's own directory rather than a sibling subdirectory.
	EntryPoint bool

	// Expanded marks macro-expanded text, where absolute paths are
	// hygiene artifacts and must not count as crate references.
	Expanded bool
}

// Parse extracts imports and module links from one file's text. It never
// fails: unparseable or invalid-UTF-8 input yields an empty result so one
// broken file cannot poison a run.
func Parse(path string, src []byte, opts Options) *Source {
	out := &Source{Path: path, Imports: make(map[string]struct{})}

	if !utf8.Valid(src) {
		return out
	}

	tree, ok := parseTree(src)
	if !ok {
		return out
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return out
	}

	w := &walker{
		src:      src,
		out:      out,
		expanded: opts.Expanded,
		fileDir:  filepath.Dir(path),
	}

	w.walkContainer(root, moduleDir(path, opts.EntryPoint))
	w.processDocs()

	out.Empty = isEmptyRoot(root)

	return out
}

func parseTree(src []byte) (*sitter.Tree, bool) {
	parser, ok := parserPool.Get().(*sitter.Parser)
	if !ok {
		return nil, false
	}

	defer parserPool.Put(parser)

	tree, err := parser.ParseString(context.Background(), nil, src)
	if err != nil || tree == nil {
		return nil, false
	}

	return tree, true
}

// moduleDir is the directory against which a file's mod declarations
// resolve: entry points and mod.rs files use their own directory, any other
// foo.rs uses the sibling foo/ directory.
func moduleDir(path string, entryPoint bool) string {
	dir := filepath.Dir(path)

	stem := strings.TrimSuffix(filepath.Base(path), ".rs")
	if entryPoint || stem == "mod" {
		return dir
	}

	return filepath.Join(dir, stem)
}

func isEmptyRoot(root sitter.Node) bool {
	for i := range root.NamedChildCount() {
		switch root.NamedChild(i).Type() {
		case "line_comment", "block_comment":
		default:
			return false
		}
	}

	return true
}

// Reserved path roots that never denote an external crate.
func isReservedRoot(name string) bool {
	switch name {
	case "crate", "super", "self", "std":
		return true
	default:
		return false
	}
}

type walker struct {
	src      []byte
	out      *Source
	expanded bool
	fileDir  string

	// snippet walkers collect imports only, so a doc sample cannot link
	// files or recurse into its own doc comments.
	snippet bool

	docs strings.Builder
}

// candidate records name as an import root if it survives normalization.
func (w *walker) candidate(name string) {
	name = strings.TrimPrefix(name, "r#")
	if name == "" {
		return
	}

	c := name[0]
	if (c < 'a' || c > 'z') && c != '_' {
		return
	}

	if isReservedRoot(name) {
		return
	}

	w.out.Imports[name] = struct{}{}
}

// walkContainer iterates an item list (source file or module body),
// tracking attribute items so a following mod declaration sees its path
// attributes.
func (w *walker) walkContainer(n sitter.Node, dir string) {
	var attrs []sitter.Node

	for i := range n.NamedChildCount() {
		child := n.NamedChild(i)

		switch child.Type() {
		case "attribute_item", "inner_attribute_item":
			w.visitAttribute(child)

			attrs = append(attrs, child)
		case "mod_item":
			w.visitMod(child, dir, attrs)

			attrs = nil
		default:
			w.visit(child, dir)

			attrs = nil
		}
	}
}

func (w *walker) visit(n sitter.Node, dir string) {
	switch n.Type() {
	case "use_declaration":
		if arg := n.ChildByFieldName("argument"); !arg.IsNull() {
			w.collectUseTree(arg)
		}

		return
	case "extern_crate_declaration":
		if name := n.ChildByFieldName("name"); !name.IsNull() {
			w.candidate(name.Content(w.src))
		}

		return
	case "scoped_identifier", "scoped_type_identifier":
		w.recordScopedRoot(n)
	case "macro_invocation":
		w.visitMacro(n)

		return
	case "token_tree":
		// Macro definition bodies and other unstructured token runs.
		w.scanTokenTree(n)

		return
	case "attribute_item", "inner_attribute_item":
		w.visitAttribute(n)

		return
	case "mod_item":
		w.visitMod(n, dir, nil)

		return
	case "line_comment", "block_comment":
		w.collectDoc(n)

		return
	case "declaration_list":
		w.walkContainer(n, dir)

		return
	}

	for i := range n.NamedChildCount() {
		w.visit(n.NamedChild(i), dir)
	}
}

// recordScopedRoot records the leftmost segment of a qualified path with at
// least two segments. Uppercase-initial roots are local types, not crates.
func (w *walker) recordScopedRoot(n sitter.Node) {
	if w.expanded && strings.HasPrefix(n.Content(w.src), "::") {
		return
	}

	cur := n

	for {
		path := cur.ChildByFieldName("path")
		if path.IsNull() {
			break
		}

		cur = path
	}

	if cur.Type() == "identifier" {
		w.candidate(cur.Content(w.src))
	}
}

func (w *walker) collectUseTree(n sitter.Node) {
	switch n.Type() {
	case "identifier":
		w.candidate(n.Content(w.src))
	case "scoped_identifier", "scoped_type_identifier":
		w.recordScopedRoot(n)
	case "use_as_clause":
		if path := n.ChildByFieldName("path"); !path.IsNull() {
			w.collectUseTree(path)
		}
	case "use_list":
		for i := range n.NamedChildCount() {
			w.collectUseTree(n.NamedChild(i))
		}
	case "scoped_use_list":
		// Only the shared prefix can name a crate; list members resolve
		// below it.
		if path := n.ChildByFieldName("path"); !path.IsNull() {
			w.collectUseTree(path)

			return
		}

		if list := n.ChildByFieldName("list"); !list.IsNull() {
			w.collectUseTree(list)
		}
	case "use_wildcard":
		if n.NamedChildCount() > 0 {
			w.collectUseTree(n.NamedChild(0))
		}
	}
}

func (w *walker) visitMacro(n sitter.Node) {
	if mac := n.ChildByFieldName("macro"); !mac.IsNull() {
		if mac.Type() == "scoped_identifier" {
			w.recordScopedRoot(mac)
		}
	}

	for i := range n.NamedChildCount() {
		child := n.NamedChild(i)
		if child.Type() == "token_tree" {
			w.scanTokenTree(child)
		}
	}
}

// visitMod handles both inline modules (recursing with an adjusted module
// directory) and bodyless declarations (recording candidate file paths).
func (w *walker) visitMod(n sitter.Node, dir string, attrs []sitter.Node) {
	name := n.ChildByFieldName("name")
	if name.IsNull() {
		return
	}

	modName := strings.TrimPrefix(name.Content(w.src), "r#")
	plainPaths, cfgPaths := w.pathAttributes(attrs)

	if body := n.ChildByFieldName("body"); !body.IsNull() {
		sub := modName
		if len(plainPaths) > 0 {
			sub = strings.TrimSuffix(plainPaths[0], ".rs")
		}

		w.walkContainer(body, filepath.Join(dir, sub))

		return
	}

	if w.snippet {
		return
	}

	for _, p := range plainPaths {
		w.link(filepath.Join(dir, p))
	}

	for _, p := range cfgPaths {
		w.link(filepath.Join(dir, p))
	}

	// A plain path attribute replaces the default probe locations; a
	// cfg_attr one is conditional, so the defaults stay candidates.
	if len(plainPaths) == 0 {
		w.link(filepath.Join(dir, modName+".rs"))
		w.link(filepath.Join(dir, modName, "mod.rs"))
	}
}

func (w *walker) link(path string) {
	w.out.LinkedPaths = append(w.out.LinkedPaths, filepath.Clean(path))
}

// pathAttributes splits the #[path = "..."] values found on a mod item into
// unconditional ones and cfg_attr-guarded ones.
func (w *walker) pathAttributes(attrs []sitter.Node) (plain, cfg []string) {
	for _, item := range attrs {
		attr := firstNamedOfType(item, "attribute")
		if attr.IsNull() {
			continue
		}

		switch attributeName(attr, w.src) {
		case "path":
			if v := attr.ChildByFieldName("value"); !v.IsNull() {
				if s, ok := rustStringValue(v, w.src); ok {
					plain = append(plain, s)
				}
			}
		case "cfg_attr":
			tt := firstNamedOfType(attr, "token_tree")
			if tt.IsNull() {
				continue
			}

			cfg = append(cfg, cfgAttrPaths(tokenLeaves(tt, w.src))...)
		}
	}

	return plain, cfg
}

func cfgAttrPaths(tokens []token) []string {
	var paths []string

	for i := 0; i+2 < len(tokens); i++ {
		if tokens[i].text == "path" && tokens[i+1].text == "=" && tokens[i+2].isString() {
			if s, ok := tokens[i+2].stringValue(); ok {
				paths = append(paths, s)
			}
		}
	}

	return paths
}

func firstNamedOfType(n sitter.Node, typ string) sitter.Node {
	for i := range n.NamedChildCount() {
		child := n.NamedChild(i)
		if child.Type() == typ {
			return child
		}
	}

	var zero sitter.Node

	return zero
}

// attributeName returns the attribute's path text: serde, doc, cfg_attr...
func attributeName(attr sitter.Node, src []byte) string {
	if attr.NamedChildCount() == 0 {
		return ""
	}

	return attr.NamedChild(0).Content(src)
}

var serdePathKeys = map[string]bool{
	"with":             true,
	"deserialize_with": true,
	"serialize_with":   true,
	"crate":            true,
	"remote":           true,
}

func (w *walker) visitAttribute(item sitter.Node) {
	attr := firstNamedOfType(item, "attribute")
	if attr.IsNull() {
		return
	}

	name := attributeName(attr, w.src)

	if name == "doc" {
		if v := attr.ChildByFieldName("value"); !v.IsNull() {
			if s, ok := rustStringValue(v, w.src); ok {
				w.docs.WriteString(s)
				w.docs.WriteByte('\n')
			}
		}

		return
	}

	tt := firstNamedOfType(attr, "token_tree")
	if tt.IsNull() {
		return
	}

	tokens := tokenLeaves(tt, w.src)

	if name == "serde" {
		w.scanSerdeArgs(tokens)
	}

	w.scanTokens(tokens)
}

// scanSerdeArgs handles serde's function-path arguments: the first path
// segment of the string value names the providing crate.
func (w *walker) scanSerdeArgs(tokens []token) {
	for i := 0; i+2 < len(tokens); i++ {
		if !serdePathKeys[tokens[i].text] || tokens[i+1].text != "=" || !tokens[i+2].isString() {
			continue
		}

		value, ok := tokens[i+2].stringValue()
		if !ok {
			continue
		}

		root, _, _ := strings.Cut(value, "::")
		w.candidate(strings.TrimSpace(root))
	}
}
