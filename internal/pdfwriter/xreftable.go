package pdfwriter

import (
	"bytes"
	"fmt"
	"sort"
)

// writeXrefTable appends a classical cross-reference table covering every
// object written in this update, grouped into contiguous subsections.
func (d *Document) writeXrefTable(buf *bytes.Buffer, written []writtenObject) error {
	sorted := make([]writtenObject, len(written))
	copy(sorted, written)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	buf.WriteString("xref\n")

	i := 0
	for i < len(sorted) {
		j := i
		for j+1 < len(sorted) && sorted[j+1].id == sorted[j].id+1 {
			j++
		}

		fmt.Fprintf(buf, "%d %d\n", sorted[i].id, j-i+1)
		for k := i; k <= j; k++ {
			fmt.Fprintf(buf, "%010d 00000 n\r\n", sorted[k].offset)
		}

		i = j + 1
	}

	return nil
}

// writeTrailer appends the trailer dictionary for a classical-xref
// incremental update. Unlike the teacher's textual substring replacement of
// the original trailer, this writer builds a fresh trailer dict preserving
// /Root, /Info and /ID from the original and adding /Prev and /Size — more
// robust when an update can add an arbitrary number of new objects rather
// than always exactly three (see DESIGN.md).
func (d *Document) writeTrailer(buf *bytes.Buffer, xrefStart int64) error {
	original := d.reader.Trailer()

	trailer := Dict{}
	if d.rootOverride != nil {
		trailer["Root"] = Ref{ID: *d.rootOverride}
	} else if root := original.Key("Root"); root.GetPtr().GetID() != 0 {
		trailer["Root"] = Ref{ID: ObjectID(root.GetPtr().GetID())}
	}
	if info := original.Key("Info"); info.GetPtr().GetID() != 0 {
		trailer["Info"] = Ref{ID: ObjectID(info.GetPtr().GetID())}
	}
	if id := original.Key("ID"); id.Len() == 2 {
		trailer["ID"] = Array{
			HexString([]byte(id.Index(0).RawString())),
			HexString([]byte(id.Index(1).RawString())),
		}
	}

	trailer["Size"] = Int(d.maxID)
	trailer["Prev"] = Int(d.reader.XrefInformation.StartPos)

	buf.WriteString("trailer\n")
	trailer.serialize(buf)
	buf.WriteByte('\n')
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefStart)

	return nil
}
