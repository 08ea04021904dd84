package pdfwriter

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

const (
	xrefStreamColumns = 5 // 1 type byte + 4-byte W[1]=4 offset field
	pngUpPredictor    = 12
)

// writeXrefStream appends the new objects' xref stream as a self-owning
// object: the stream's own entry is the last row of its own table, as the
// teacher's writeXrefStreamHeader/writeXrefStreamEntries pair does.
func (d *Document) writeXrefStream(buf *bytes.Buffer, written []writtenObject, xrefStart int64) error {
	xrefID := ObjectID(d.maxID)

	sorted := make([]writtenObject, len(written))
	copy(sorted, written)
	sorted = append(sorted, writtenObject{id: xrefID, offset: xrefStart, kind: entryNew})
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	var raw bytes.Buffer
	for _, w := range sorted {
		raw.WriteByte(1) // type 1: normal in-use object
		raw.Write(encodeOffset(w.offset))
		raw.WriteByte(0) // generation
	}

	encoded, err := encodePNGUp(xrefStreamColumns, raw.Bytes())
	if err != nil {
		return fmt.Errorf("pdfwriter: encode xref stream: %w", err)
	}

	index := buildIndexRuns(sorted)

	original := d.reader.Trailer()
	root := d.rootOverride
	var rootID ObjectID
	if root != nil {
		rootID = *root
	} else {
		rootID = ObjectID(original.Key("Root").GetPtr().GetID())
	}

	dict := Dict{
		"Type":     Name("XRef"),
		"Filter":   Name("FlateDecode"),
		"DecodeParms": Dict{
			"Columns":   Int(xrefStreamColumns),
			"Predictor": Int(pngUpPredictor),
		},
		"W":     Array{Int(1), Int(4), Int(1)},
		"Index": index,
		"Prev":  Int(d.reader.XrefInformation.StartPos),
		"Size":  Int(d.maxID + 1),
		"Root":  Ref{ID: rootID},
	}
	if id := original.Key("ID"); id.Len() == 2 {
		dict["ID"] = Array{
			HexString([]byte(id.Index(0).RawString())),
			HexString([]byte(id.Index(1).RawString())),
		}
	}

	stream := Stream{Dict: dict, Data: encoded}

	fmt.Fprintf(buf, "%d 0 obj\n", xrefID)
	stream.serialize(buf)
	buf.WriteString("\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefStart)

	return nil
}

// buildIndexRuns groups sorted written objects into contiguous
// (first, count) pairs for the xref stream's /Index entry.
func buildIndexRuns(sorted []writtenObject) Array {
	var index Array
	i := 0
	for i < len(sorted) {
		j := i
		for j+1 < len(sorted) && sorted[j+1].id == sorted[j].id+1 {
			j++
		}
		index = append(index, Int(sorted[i].id), Int(j-i+1))
		i = j + 1
	}
	return index
}

// encodeOffset encodes an offset as the big-endian 4-byte field matching
// /W [1 4 1]'s second column.
func encodeOffset(offset int64) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(offset))
	return b
}

// encodePNGUp applies the PNG Up filter (predictor 12) row-by-row, then
// deflates the result — the encoding side of the predictor xref streams
// declare in /DecodeParms, following the teacher's EncodePNGUPBytes.
func encodePNGUp(columns int, data []byte) ([]byte, error) {
	if len(data)%columns != 0 {
		return nil, errors.New("pdfwriter: xref row data not a multiple of column width")
	}
	rowCount := len(data) / columns

	prev := make([]byte, columns)
	var filtered bytes.Buffer
	row := make([]byte, columns)
	for i := 0; i < rowCount; i++ {
		src := data[columns*i : columns*(i+1)]
		for j := range row {
			row[j] = src[j] - prev[j]
		}
		filtered.WriteByte(2) // PNG "Up" filter tag
		filtered.Write(row)
		copy(prev, src)
	}

	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	if _, err := w.Write(filtered.Bytes()); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
