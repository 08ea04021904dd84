// Package pdfwriter implements the incremental-update PDF writer (spec §4.A)
// and the signature field builder (spec §4.C) built on top of it.
//
// A loaded Document exposes its existing indirect objects read-only (via
// github.com/digitorus/pdf) and a map of freshly allocated or replaced
// objects. The object graph is never represented as a cyclic pointer graph:
// every cross-reference inside a new object is an explicit Ref value,
// resolved only at serialization time.
package pdfwriter

import (
	"bytes"
	"fmt"
	"sort"
)

// ObjectID identifies one object number in the output file. Generation is
// always 0 for objects this writer produces; incremental updates never
// bump generation for reused numbers, matching how the rest of the corpus
// treats replaced objects (see DESIGN.md).
type ObjectID uint32

// Value is a node in the new-objects graph: a Dict, Array, Name, Ref,
// Int, Real, String, Bool, Null, or Stream.
type Value interface {
	serialize(buf *bytes.Buffer)
}

// Ref is an indirect reference to another object, existing or new.
type Ref struct{ ID ObjectID }

func (r Ref) serialize(buf *bytes.Buffer) { fmt.Fprintf(buf, "%d 0 R", r.ID) }

// Name is a PDF name object, written without its leading slash.
type Name string

func (n Name) serialize(buf *bytes.Buffer) { fmt.Fprintf(buf, "/%s", string(n)) }

// String is a PDF literal string, written parenthesised with the minimal
// escaping PDF literal strings require.
type String string

func (s String) serialize(buf *bytes.Buffer) {
	buf.WriteByte('(')
	for _, c := range []byte(s) {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

// HexString is a PDF hex string, written "<...>" with two hex digits per
// byte. Used for /Contents and /ByteRange placeholders.
type HexString []byte

func (h HexString) serialize(buf *bytes.Buffer) {
	buf.WriteByte('<')
	fmt.Fprintf(buf, "%x", []byte(h))
	buf.WriteByte('>')
}

// Int is a PDF integer object.
type Int int64

func (i Int) serialize(buf *bytes.Buffer) { fmt.Fprintf(buf, "%d", int64(i)) }

// Real is a PDF real number object.
type Real float64

func (r Real) serialize(buf *bytes.Buffer) { fmt.Fprintf(buf, "%g", float64(r)) }

// Bool is a PDF boolean object.
type Bool bool

func (b Bool) serialize(buf *bytes.Buffer) {
	if b {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
}

// Null is the PDF null object.
type Null struct{}

func (Null) serialize(buf *bytes.Buffer) { buf.WriteString("null") }

// Array is an ordered PDF array object.
type Array []Value

func (a Array) serialize(buf *bytes.Buffer) {
	buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			buf.WriteByte(' ')
		}
		v.serialize(buf)
	}
	buf.WriteByte(']')
}

// Dict is a PDF dictionary object. Keys are written in sorted order so
// output is deterministic, which keeps tests (and byte-range math) stable.
type Dict map[Name]Value

func (d Dict) serialize(buf *bytes.Buffer) {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	buf.WriteString("<<")
	for _, k := range keys {
		buf.WriteByte('\n')
		fmt.Fprintf(buf, "/%s ", k)
		d[Name(k)].serialize(buf)
	}
	buf.WriteString("\n>>")
}

// Stream is a PDF stream object: a dictionary plus raw bytes. Length is
// filled in automatically at serialization time; callers must not set
// "Length" in Dict.
type Stream struct {
	Dict Dict
	Data []byte
}

func (s Stream) serialize(buf *bytes.Buffer) {
	d := make(Dict, len(s.Dict)+1)
	for k, v := range s.Dict {
		d[k] = v
	}
	d["Length"] = Int(len(s.Data))
	d.serialize(buf)
	buf.WriteString("\nstream\n")
	buf.Write(s.Data)
	buf.WriteString("\nendstream")
}

// Serialize renders v using the PDF object syntax.
func Serialize(v Value) []byte {
	var buf bytes.Buffer
	v.serialize(&buf)
	return buf.Bytes()
}
