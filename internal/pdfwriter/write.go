package pdfwriter

import (
	"bytes"
	"fmt"
	"sort"
)

// ContentRange reports the byte offsets, within the final output, of a
// tracked dict value.
type ContentRange struct {
	// Start is the offset of the value's first byte; End is one past its
	// last byte.
	Start, End int64
}

// TrackedKey identifies one (object, dict key) pair registered with
// Document.TrackDictKey.
type TrackedKey struct {
	ID  ObjectID
	Key string
}

// Result is returned by Finalize: everything a caller needs to compute a
// PDF /ByteRange and locate the signature placeholder it is relative to.
type Result struct {
	// Bytes is the complete output: original bytes followed by the
	// appended incremental update.
	Bytes []byte
	// ContentRanges maps each TrackDictKey registration to the byte
	// offsets of its tracked value within Bytes.
	ContentRanges map[TrackedKey]ContentRange
}

// writtenObject records where one object's "N 0 obj ... endobj" text ended
// up, for xref construction.
type writtenObject struct {
	id     ObjectID
	offset int64
	kind   entryKind
}

// Finalize renders the incremental update: every object added via
// AddObject/UpdateObject, a new xref section (table or stream, matching
// the original), and a trailer with /Prev pointing at the original xref
// and /Size covering the new highest object number.
func (d *Document) Finalize(original []byte) (*Result, error) {
	if int64(len(original)) != d.size {
		return nil, fmt.Errorf("pdfwriter: original length %d does not match opened size %d", len(original), d.size)
	}

	var update bytes.Buffer
	base := int64(len(original))

	written := make([]writtenObject, 0, len(d.order))
	ranges := make(map[TrackedKey]ContentRange)

	for _, id := range d.order {
		obj := d.objects[id]
		offset := base + int64(update.Len())
		written = append(written, writtenObject{id: id, offset: offset, kind: obj.kind})

		fmt.Fprintf(&update, "%d 0 obj\n", id)

		if trackKeys, ok := d.trackedKeys[id]; ok {
			dict, isDict := obj.value.(Dict)
			if !isDict {
				return nil, fmt.Errorf("pdfwriter: tracked object %d is not a Dict", id)
			}
			objStart := base + int64(update.Len())
			data, spans := serializeDictTracking(dict, trackKeys)
			update.Write(data)
			for key, span := range spans {
				ranges[TrackedKey{ID: id, Key: key}] = ContentRange{
					Start: objStart + int64(span[0]),
					End:   objStart + int64(span[1]),
				}
			}
		} else {
			obj.value.serialize(&update)
		}

		update.WriteString("\nendobj\n")
	}

	xrefStart := base + int64(update.Len())

	if d.IsXrefStream() {
		if err := d.writeXrefStream(&update, written, xrefStart); err != nil {
			return nil, err
		}
	} else {
		if err := d.writeXrefTable(&update, written); err != nil {
			return nil, err
		}
		if err := d.writeTrailer(&update, xrefStart); err != nil {
			return nil, err
		}
	}

	out := make([]byte, 0, len(original)+update.Len())
	out = append(out, original...)
	out = append(out, update.Bytes()...)

	return &Result{Bytes: out, ContentRanges: ranges}, nil
}

// serializeDictTracking serializes d exactly as Dict.serialize does, but
// also records the start/end offsets (within the returned buffer) of each
// value stored under a key in trackKeys.
func serializeDictTracking(d Dict, trackKeys []string) (data []byte, spans map[string][2]int) {
	wanted := make(map[string]bool, len(trackKeys))
	for _, k := range trackKeys {
		wanted[k] = true
	}
	spans = make(map[string][2]int, len(trackKeys))

	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString("<<")
	for _, k := range keys {
		buf.WriteByte('\n')
		fmt.Fprintf(&buf, "/%s ", k)
		start := buf.Len()
		d[Name(k)].serialize(&buf)
		if wanted[k] {
			spans[k] = [2]int{start, buf.Len()}
		}
	}
	buf.WriteString("\n>>")
	return buf.Bytes(), spans
}
