package pdfwriter

import (
	"fmt"
	"io"

	"github.com/digitorus/pdf"
)

// entryKind distinguishes a freshly allocated object from an existing
// object number being replaced with a new generation's content.
type entryKind int

const (
	entryNew entryKind = iota
	entryReplace
)

type pendingObject struct {
	kind  entryKind
	value Value
}

// Document is a loaded PDF plus the set of objects this edit session has
// allocated or replaced. It owns both maps exclusively; callers obtain a
// Page to mutate one page's resources/content for the duration of an edit.
type Document struct {
	reader *pdf.Reader
	size   int64

	// maxID is the next object number to allocate; starts at one past the
	// highest object number present in the original file.
	maxID uint32

	objects map[ObjectID]*pendingObject
	order   []ObjectID // allocation order, for deterministic output

	// trackedKeys maps an allocated object id to the dict keys whose
	// values' byte offsets should be reported after Finalize.
	trackedKeys map[ObjectID][]string

	// rootOverride, when set, replaces /Root in the emitted trailer /
	// xref stream dictionary, for the common case of rewriting the
	// catalog as a new object during this edit.
	rootOverride *ObjectID
}

// SetRoot overrides the /Root entry of the trailer this document will
// emit, pointing at a newly-written catalog object.
func (d *Document) SetRoot(id ObjectID) {
	d.rootOverride = &id
}

// Open parses an existing PDF (read via the ReadSeeker r, whose total
// length is size) and returns a Document ready for incremental editing.
func Open(r io.ReadSeeker, size int64) (*Document, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("pdfwriter: open: %w", err)
	}

	d := &Document{
		reader:      reader,
		size:        size,
		maxID:       uint32(reader.XrefInformation.ItemCount),
		objects:     make(map[ObjectID]*pendingObject),
		trackedKeys: make(map[ObjectID][]string),
	}
	return d, nil
}

// Reader exposes the underlying read-only parser for callers that need to
// walk the existing object graph (page tree, AcroForm, resources).
func (d *Document) Reader() *pdf.Reader { return d.reader }

// Size returns the byte length of the original, untouched input.
func (d *Document) Size() int64 { return d.size }

// Trailer returns the original document's trailer dictionary.
func (d *Document) Trailer() pdf.Value { return d.reader.Trailer() }

// IsXrefStream reports whether the original document's cross-reference
// section is an xref stream (PDF 1.5+) rather than a classical table.
func (d *Document) IsXrefStream() bool {
	return d.reader.XrefInformation.Type == "stream"
}

// AddObject allocates a fresh object number for value and returns it.
func (d *Document) AddObject(value Value) ObjectID {
	id := ObjectID(d.maxID)
	d.maxID++
	d.objects[id] = &pendingObject{kind: entryNew, value: value}
	d.order = append(d.order, id)
	return id
}

// UpdateObject replaces the content of an existing object number. The
// generation number is kept at the original's (incremental updates here
// never bump generation on reused numbers; see DESIGN.md for why).
func (d *Document) UpdateObject(id ObjectID, value Value) {
	if _, exists := d.objects[id]; !exists {
		d.order = append(d.order, id)
	}
	d.objects[id] = &pendingObject{kind: entryReplace, value: value}
}

// TrackDictKey requests that Finalize report the byte offsets, within the
// final output, of the value stored under key in the dict previously (or
// subsequently) passed to AddObject/UpdateObject for id. Used to locate
// the signature dictionary's /Contents and /ByteRange values once the
// file is fully written.
func (d *Document) TrackDictKey(id ObjectID, key string) {
	d.trackedKeys[id] = append(d.trackedKeys[id], key)
}

// NextObjectID reports the object number that the next AddObject call will
// allocate, without allocating it. Used by callers (e.g. the signature
// field builder) that need to forward-reference an object before it
// exists.
func (d *Document) NextObjectID() ObjectID {
	return ObjectID(d.maxID)
}

// ReserveObjectID allocates an object number without yet giving it content;
// callers must follow up with UpdateObject before Finalize. Used when two
// new objects need to reference each other (e.g. a signature widget and
// its signature dictionary).
func (d *Document) ReserveObjectID() ObjectID {
	id := ObjectID(d.maxID)
	d.maxID++
	return id
}
