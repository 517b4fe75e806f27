package manifest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexaandru/go-sitter-forest/toml"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// Sentinel errors for manifest parsing.
var (
	ErrInvalidTOML = errors.New("manifest: invalid TOML")
	ErrNoRootNode  = errors.New("manifest: no root node")
)

var tomlLanguage = sitter.NewLanguage(toml.GetLanguage())

// Span is a half-open byte range [Start, End) into the raw manifest text.
type Span struct {
	Start uint
	End   uint
}

// Len returns the number of bytes the span covers.
func (s Span) Len() uint {
	if s.End < s.Start {
		return 0
	}

	return s.End - s.Start
}

// IsZero reports whether the span carries no position information.
func (s Span) IsZero() bool { return s.Start == 0 && s.End == 0 }

func nodeSpan(n sitter.Node) Span {
	return Span{Start: n.StartByte(), End: n.EndByte()}
}

// Kind discriminates the raw TOML value variants the model cares about.
type Kind uint8

// Raw TOML value kinds.
const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindBool
	KindDatetime
	KindArray
	KindTable
)

// Value is a span-annotated TOML value.
type Value struct {
	Kind  Kind
	Span  Span
	Str   string  // decoded text for KindString, raw text otherwise
	Bool  bool    // set for KindBool
	Items []Value // set for KindArray
	Tab   *Table  // set for KindTable
}

// Entry is one key/value binding inside a Table, in document order.
type Entry struct {
	Key     string
	KeySpan Span
	Span    Span // full extent of the binding, header included for header tables
	Value   Value
}

// Table is an ordered list of entries. Header tables, inline tables and
// dotted-key groups all normalize to this shape.
type Table struct {
	Span    Span
	Entries []Entry
}

// Entry returns the entry for key, or nil when absent.
func (t *Table) Entry(key string) *Entry {
	if t == nil {
		return nil
	}

	for i := range t.Entries {
		if t.Entries[i].Key == key {
			return &t.Entries[i]
		}
	}

	return nil
}

// Table returns the sub-table for key, or nil when absent or not a table.
func (t *Table) Table(key string) *Table {
	e := t.Entry(key)
	if e == nil || e.Value.Kind != KindTable {
		return nil
	}

	return e.Value.Tab
}

// Str returns the string value for key.
func (t *Table) Str(key string) (string, bool) {
	e := t.Entry(key)
	if e == nil || e.Value.Kind != KindString {
		return "", false
	}

	return e.Value.Str, true
}

// Bool returns the boolean value for key.
func (t *Table) Bool(key string) (bool, bool) {
	e := t.Entry(key)
	if e == nil || e.Value.Kind != KindBool {
		return false, false
	}

	return e.Value.Bool, true
}

type keySegment struct {
	text string
	span Span
}

// parseDoc parses raw TOML into the generic document model. Header tables
// and dotted keys are folded into nested Tables so the typed layer can walk
// one uniform shape.
func parseDoc(src []byte) (*Table, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(tomlLanguage)

	tree, err := parser.ParseString(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, ErrNoRootNode
	}

	if hasSyntaxError(root) {
		return nil, ErrInvalidTOML
	}

	doc := &Table{Span: nodeSpan(root)}

	for i := range root.NamedChildCount() {
		child := root.NamedChild(i)

		switch child.Type() {
		case "pair":
			appendPair(doc, child, src)
		case "table":
			buildHeaderTable(doc, child, src, false)
		case "table_array_element":
			buildHeaderTable(doc, child, src, true)
		}
	}

	return doc, nil
}

func hasSyntaxError(n sitter.Node) bool {
	if n.Type() == "ERROR" {
		return true
	}

	for i := range n.ChildCount() {
		if hasSyntaxError(n.Child(i)) {
			return true
		}
	}

	return false
}

// keySegments flattens a (possibly dotted, possibly quoted) key node into
// its path segments.
func keySegments(n sitter.Node, src []byte) []keySegment {
	switch n.Type() {
	case "bare_key":
		return []keySegment{{text: n.Content(src), span: nodeSpan(n)}}
	case "quoted_key":
		return []keySegment{{text: decodeString(n.Content(src)), span: nodeSpan(n)}}
	case "dotted_key":
		var segs []keySegment

		for i := range n.NamedChildCount() {
			segs = append(segs, keySegments(n.NamedChild(i), src)...)
		}

		return segs
	default:
		return nil
	}
}

func isKeyNode(n sitter.Node) bool {
	switch n.Type() {
	case "bare_key", "quoted_key", "dotted_key":
		return true
	default:
		return false
	}
}

// ensureTable resolves (creating as needed) the nested table at the given
// path below parent. Implicit intermediate entries carry zero spans until a
// concrete binding lands under them.
func ensureTable(parent *Table, segs []keySegment) *Table {
	cur := parent

	for _, seg := range segs {
		e := cur.Entry(seg.text)
		if e == nil {
			cur.Entries = append(cur.Entries, Entry{
				Key:     seg.text,
				KeySpan: seg.span,
				Value:   Value{Kind: KindTable, Tab: &Table{}},
			})
			e = &cur.Entries[len(cur.Entries)-1]
		}

		if e.Value.Kind != KindTable {
			// Key collision with a non-table value. Shadow it so the walk
			// can continue; real cargo rejects such manifests anyway.
			e.Value = Value{Kind: KindTable, Tab: &Table{}}
		}

		cur = e.Value.Tab
	}

	return cur
}

func buildHeaderTable(doc *Table, n sitter.Node, src []byte, isArray bool) {
	var keyNode sitter.Node

	found := false

	for i := range n.NamedChildCount() {
		child := n.NamedChild(i)
		if isKeyNode(child) {
			keyNode, found = child, true

			break
		}
	}

	if !found {
		return
	}

	segs := keySegments(keyNode, src)
	if len(segs) == 0 {
		return
	}

	span := nodeSpan(n)
	parent := ensureTable(doc, segs[:len(segs)-1])
	last := segs[len(segs)-1]

	var target *Table

	if isArray {
		e := parent.Entry(last.text)
		if e == nil || e.Value.Kind != KindArray {
			parent.Entries = append(parent.Entries, Entry{
				Key:     last.text,
				KeySpan: last.span,
				Span:    span,
				Value:   Value{Kind: KindArray, Span: span},
			})
			e = &parent.Entries[len(parent.Entries)-1]
		}

		target = &Table{Span: span}
		e.Value.Items = append(e.Value.Items, Value{Kind: KindTable, Span: span, Tab: target})
		e.Span.End = span.End
	} else {
		tab := ensureTable(parent, segs[len(segs)-1:])
		tab.Span = span

		e := parent.Entry(last.text)
		e.Span = span

		target = tab
	}

	for i := range n.NamedChildCount() {
		child := n.NamedChild(i)
		if child.Type() == "pair" {
			appendPair(target, child, src)
		}
	}
}

// appendPair records a key = value binding on tab, nesting through dotted
// key segments.
func appendPair(tab *Table, n sitter.Node, src []byte) {
	var (
		keyNode, valNode sitter.Node
		haveKey, haveVal bool
	)

	for i := range n.NamedChildCount() {
		child := n.NamedChild(i)

		switch {
		case isKeyNode(child) && !haveKey:
			keyNode, haveKey = child, true
		case child.Type() != "comment":
			valNode, haveVal = child, true
		}
	}

	if !haveKey || !haveVal {
		return
	}

	segs := keySegments(keyNode, src)
	if len(segs) == 0 {
		return
	}

	span := nodeSpan(n)
	parent := tab

	if len(segs) > 1 {
		parent = ensureTable(tab, segs[:len(segs)-1])
		growEntrySpans(tab, segs[:len(segs)-1], span)
	}

	last := segs[len(segs)-1]
	parent.Entries = append(parent.Entries, Entry{
		Key:     last.text,
		KeySpan: last.span,
		Span:    span,
		Value:   convertValue(valNode, src),
	})
}

// growEntrySpans widens the spans of implicit dotted-key group entries so a
// group like `foo.version = ...` / `foo.optional = ...` reports one extent
// covering all its bindings.
func growEntrySpans(tab *Table, segs []keySegment, span Span) {
	cur := tab

	for _, seg := range segs {
		e := cur.Entry(seg.text)
		if e == nil {
			return
		}

		if e.Span.IsZero() {
			e.Span = span
		} else {
			if span.Start < e.Span.Start {
				e.Span.Start = span.Start
			}

			if span.End > e.Span.End {
				e.Span.End = span.End
			}
		}

		cur = e.Value.Tab
	}
}

func convertValue(n sitter.Node, src []byte) Value {
	span := nodeSpan(n)

	switch n.Type() {
	case "string":
		return Value{Kind: KindString, Span: span, Str: decodeString(n.Content(src))}
	case "integer":
		return Value{Kind: KindInteger, Span: span, Str: n.Content(src)}
	case "float":
		return Value{Kind: KindFloat, Span: span, Str: n.Content(src)}
	case "boolean":
		return Value{Kind: KindBool, Span: span, Bool: n.Content(src) == "true"}
	case "offset_date_time", "local_date_time", "local_date", "local_time":
		return Value{Kind: KindDatetime, Span: span, Str: n.Content(src)}
	case "array":
		v := Value{Kind: KindArray, Span: span}

		for i := range n.NamedChildCount() {
			child := n.NamedChild(i)
			if child.Type() == "comment" {
				continue
			}

			v.Items = append(v.Items, convertValue(child, src))
		}

		return v
	case "inline_table":
		tab := &Table{Span: span}

		for i := range n.NamedChildCount() {
			child := n.NamedChild(i)
			if child.Type() == "pair" {
				appendPair(tab, child, src)
			}
		}

		return Value{Kind: KindTable, Span: span, Tab: tab}
	default:
		return Value{Kind: KindString, Span: span, Str: n.Content(src)}
	}
}

const (
	tripleQuoteLen = 3
	escapeUnicode4 = 4
	escapeUnicode8 = 8
)

// decodeString decodes any of the four TOML string forms into its value.
func decodeString(raw string) string {
	switch {
	case strings.HasPrefix(raw, `'''`):
		s := strings.TrimSuffix(strings.TrimPrefix(raw, `'''`), `'''`)

		return strings.TrimPrefix(strings.TrimPrefix(s, "\r\n"), "\n")
	case strings.HasPrefix(raw, `"""`):
		s := strings.TrimSuffix(strings.TrimPrefix(raw, `"""`), `"""`)
		s = strings.TrimPrefix(strings.TrimPrefix(s, "\r\n"), "\n")

		return unescapeBasic(s, true)
	case strings.HasPrefix(raw, `'`):
		return strings.TrimSuffix(strings.TrimPrefix(raw, `'`), `'`)
	case strings.HasPrefix(raw, `"`):
		return unescapeBasic(strings.TrimSuffix(strings.TrimPrefix(raw, `"`), `"`), false)
	default:
		return raw
	}
}

// unescapeBasic resolves backslash escapes of basic strings. Multiline mode
// additionally folds line-continuation backslashes.
func unescapeBasic(s string, multiline bool) string {
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
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		case 'u', 'U':
			width := escapeUnicode4
			if s[i] == 'U' {
				width = escapeUnicode8
			}

			if i+width < len(s) {
				if r, ok := parseHexRune(s[i+1 : i+1+width]); ok {
					b.WriteRune(r)
					i += width

					continue
				}
			}

			b.WriteByte(s[i])
		case '\n', '\r', ' ', '\t':
			if multiline {
				// Line continuation: swallow whitespace up to and past the
				// next non-whitespace byte boundary.
				for i < len(s) && (s[i] == '\n' || s[i] == '\r' || s[i] == ' ' || s[i] == '\t') {
					i++
				}

				i--
			} else {
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}

	return b.String()
}

func parseHexRune(s string) (rune, bool) {
	var r rune

	for i := 0; i < len(s); i++ {
		c := s[i]

		var d rune

		switch {
		case c >= '0' && c <= '9':
			d = rune(c - '0')
		case c >= 'a' && c <= 'f':
			d = rune(c-'a') + 10 //nolint:mnd // hex digit offset
		case c >= 'A' && c <= 'F':
			d = rune(c-'A') + 10 //nolint:mnd // hex digit offset
		default:
			return 0, false
		}

		r = r<<4 | d //nolint:mnd // hex shift
	}

	return r, true
}
