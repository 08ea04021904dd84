package pdfwriter

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/digitorus/pdf"
)

// MediaBox is a page's bounding rectangle in PDF user space.
type MediaBox struct {
	LLX, LLY, URX, URY float64
}

// Width reports the page width, normalising for an inverted box.
func (m MediaBox) Width() float64 { return absf(m.URX - m.LLX) }

// Height reports the page height, normalising for an inverted box.
func (m MediaBox) Height() float64 { return absf(m.URY - m.LLY) }

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// PageEditor mutates one page for the duration of a single edit session.
// It clones the page dictionary (and, if referenced rather than inline,
// its /Resources dictionary) into the new-objects map before mutating
// either, per spec §4.A's "clone-on-write" rule — the original bytes are
// never touched.
type PageEditor struct {
	doc *Document

	pageID ObjectID
	page   pdf.Value

	mediaBox MediaBox

	fonts     Dict
	xobjects  Dict
	annots    Array
	appendOps bytes.Buffer
}

// LoadPage opens pageID (an existing page object number) for editing.
func (d *Document) LoadPage(pageID ObjectID) (*PageEditor, error) {
	page := findObject(d.reader.Trailer().Key("Root").Key("Pages"), uint32(pageID))
	if page.Kind() != pdf.Dict {
		return nil, fmt.Errorf("pdfwriter: object %d is not a page dictionary", pageID)
	}

	box := page.Key("MediaBox")
	mb := MediaBox{LLX: 0, LLY: 0, URX: 612, URY: 792}
	if box.Kind() == pdf.Array && box.Len() == 4 {
		mb = MediaBox{
			LLX: box.Index(0).Float64(),
			LLY: box.Index(1).Float64(),
			URX: box.Index(2).Float64(),
			URY: box.Index(3).Float64(),
		}
	}
	if mb.URX < mb.LLX {
		mb.LLX, mb.URX = mb.URX, mb.LLX
	}
	if mb.URY < mb.LLY {
		mb.LLY, mb.URY = mb.URY, mb.LLY
	}

	pe := &PageEditor{
		doc:      d,
		pageID:   pageID,
		page:     page,
		mediaBox: mb,
		fonts:    Dict{},
		xobjects: Dict{},
	}

	res := page.Key("Resources")
	if font := res.Key("Font"); font.Kind() == pdf.Dict {
		for _, k := range font.Keys() {
			pe.fonts[Name(k)] = cloneRef(font.Key(k))
		}
	}
	if xo := res.Key("XObject"); xo.Kind() == pdf.Dict {
		for _, k := range xo.Keys() {
			pe.xobjects[Name(k)] = cloneRef(xo.Key(k))
		}
	}
	if annots := page.Key("Annots"); annots.Kind() == pdf.Array {
		for i := 0; i < annots.Len(); i++ {
			pe.annots = append(pe.annots, cloneRef(annots.Index(i)))
		}
	}

	return pe, nil
}

// MediaBox reports the page's bounding rectangle.
func (pe *PageEditor) MediaBox() MediaBox { return pe.mediaBox }

// EnsureFont registers a shared font resource under name, pointing at
// fontObjID, unless already present.
func (pe *PageEditor) EnsureFont(name Name, fontObjID ObjectID) {
	if _, ok := pe.fonts[name]; !ok {
		pe.fonts[name] = Ref{ID: fontObjID}
	}
}

// AddXObject registers a freshly generated, unique resource name for
// xobjID and returns it.
func (pe *PageEditor) AddXObject(xobjID ObjectID) Name {
	name := Name(fmt.Sprintf("Xesign%d", xobjID))
	pe.xobjects[name] = Ref{ID: xobjID}
	return name
}

// AppendContent appends raw content-stream operators, executed after the
// page's existing content operators.
func (pe *PageEditor) AppendContent(ops []byte) {
	pe.appendOps.WriteByte(' ')
	pe.appendOps.Write(ops)
}

// AddAnnotation appends widgetID to the page's /Annots array.
func (pe *PageEditor) AddAnnotation(widgetID ObjectID) {
	pe.annots = append(pe.annots, Ref{ID: widgetID})
}

// Commit writes the accumulated content stream and rewritten page
// dictionary as new objects, replacing the page's object number in place
// (spec §4.A: "the page dictionary itself is re-written as a new object
// (same id...)").
func (pe *PageEditor) Commit() error {
	var original []byte
	if existing := pe.page.Key("Contents"); existing.Kind() != pdf.Null {
		data, err := readContentStream(existing)
		if err != nil {
			return fmt.Errorf("pdfwriter: read page content: %w", err)
		}
		original = data
	}

	contentID := pe.doc.AddObject(Stream{
		Dict: Dict{"Filter": Name("FlateDecode")},
		Data: deflate(append(append([]byte{}, original...), pe.appendOps.Bytes()...)),
	})

	resources := Dict{}
	if len(pe.fonts) > 0 {
		resources["Font"] = pe.fonts
	}
	if len(pe.xobjects) > 0 {
		resources["XObject"] = pe.xobjects
	}

	newPage := Dict{
		"Type":      Name("Page"),
		"Parent":    cloneRef(pe.page.Key("Parent")),
		"MediaBox":  Array{Real(pe.mediaBox.LLX), Real(pe.mediaBox.LLY), Real(pe.mediaBox.URX), Real(pe.mediaBox.URY)},
		"Resources": resources,
		"Contents":  Ref{ID: contentID},
	}
	if len(pe.annots) > 0 {
		newPage["Annots"] = pe.annots
	}

	pe.doc.UpdateObject(pe.pageID, newPage)
	return nil
}

// findObject walks a /Pages tree (or any subtree) looking for the page
// whose indirect object number is id.
func findObject(node pdf.Value, id uint32) pdf.Value {
	if ptr := node.GetPtr(); ptr.GetID() == id {
		return node
	}
	if node.Key("Type").Name() == "Pages" {
		kids := node.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			kid := kids.Index(i)
			if kid.GetPtr().GetID() == id {
				return kid
			}
			if found := findObject(kid, id); found.Kind() != pdf.Null {
				return found
			}
		}
	}
	return pdf.Value{}
}

// cloneRef turns an existing pdf.Value reference into a Ref if it's
// indirect, or recursively clones it as a direct value otherwise.
func cloneRef(v pdf.Value) Value {
	if ptr := v.GetPtr(); ptr.GetID() != 0 {
		return Ref{ID: ObjectID(ptr.GetID())}
	}
	switch v.Kind() {
	case pdf.Dict:
		d := Dict{}
		for _, k := range v.Keys() {
			d[Name(k)] = cloneRef(v.Key(k))
		}
		return d
	case pdf.Array:
		a := make(Array, v.Len())
		for i := range a {
			a[i] = cloneRef(v.Index(i))
		}
		return a
	case pdf.Name:
		return Name(v.Name())
	case pdf.String:
		return String(v.RawString())
	case pdf.Integer:
		return Int(v.Int64())
	case pdf.Real:
		return Real(v.Float64())
	case pdf.Bool:
		return Bool(v.Bool())
	default:
		return Null{}
	}
}

func readContentStream(v pdf.Value) ([]byte, error) {
	if v.Kind() == pdf.Array {
		var all []byte
		for i := 0; i < v.Len(); i++ {
			part, err := readContentStream(v.Index(i))
			if err != nil {
				return nil, err
			}
			all = append(all, part...)
			all = append(all, '\n')
		}
		return all, nil
	}
	r := v.Reader()
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write(data)
	_ = w.Close()
	return buf.Bytes()
}
