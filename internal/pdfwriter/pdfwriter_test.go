package pdfwriter_test

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/esignhq/esign/internal/pdfwriter"
	"github.com/stretchr/testify/require"
)

// buildMinimalPDF returns a tiny, self-consistent single-page PDF with a
// classical xref table. Offsets are computed from the buffer as it's
// written rather than hand-calculated, so the fixture can't drift out of
// sync with its own xref.
func buildMinimalPDF(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	offsets := make([]int, 5)

	buf.WriteString("%PDF-1.4\n")

	offsets[1] = buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	offsets[3] = buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> /Contents 4 0 R >>\nendobj\n")

	offsets[4] = buf.Len()
	content := "q Q"
	buf.WriteString(fmt.Sprintf("4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(content), content))

	xrefStart := buf.Len()
	buf.WriteString("xref\n0 5\n")
	buf.WriteString("0000000000 65535 f \r\n")
	for i := 1; i <= 4; i++ {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \r\n", offsets[i]))
	}
	buf.WriteString("trailer\n<< /Size 5 /Root 1 0 R /ID [<0011223344556677> <0011223344556677>] >>\n")
	buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefStart))

	return buf.Bytes()
}

func TestFinalizeAppendsAndPreservesPrefix(t *testing.T) {
	original := buildMinimalPDF(t)

	doc, err := pdfwriter.Open(bytes.NewReader(original), int64(len(original)))
	require.NoError(t, err)
	require.False(t, doc.IsXrefStream())

	id := doc.AddObject(pdfwriter.Dict{
		"Type": pdfwriter.Name("Font"),
		"Subtype": pdfwriter.Name("Type1"),
		"BaseFont": pdfwriter.Name("Helvetica"),
	})
	require.Equal(t, pdfwriter.ObjectID(5), id)

	result, err := doc.Finalize(original)
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(result.Bytes, original), "output must start with the untouched original bytes")
	require.Greater(t, len(result.Bytes), len(original))
	require.Contains(t, string(result.Bytes), "/BaseFont /Helvetica")
	require.Contains(t, string(result.Bytes), "/Prev")
}

func TestSignatureFieldReservesFixedSlot(t *testing.T) {
	original := buildMinimalPDF(t)
	doc, err := pdfwriter.Open(bytes.NewReader(original), int64(len(original)))
	require.NoError(t, err)

	res := doc.AddSignatureField(
		[4]float64{72, 72, 200, 120},
		pdfwriter.ObjectID(3),
		0,
		pdfwriter.ApprovalSignature,
		0,
		pdfwriter.SignatureInfo{Name: "Jane Doe", Reason: "approval"},
		time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	)
	require.NotZero(t, res.SignatureID)
	require.NotZero(t, res.WidgetID)

	out, err := doc.Finalize(original)
	require.NoError(t, err)

	rng, ok := out.ContentRanges[pdfwriter.TrackedKey{ID: res.SignatureID, Key: "Contents"}]
	require.True(t, ok)
	require.Equal(t, int64(pdfwriter.ContentsSlotSize*2+2), rng.End-rng.Start, "Contents hex string must be exactly 8192 bytes (16384 hex digits)")

	brRng, ok := out.ContentRanges[pdfwriter.TrackedKey{ID: res.SignatureID, Key: "ByteRange"}]
	require.True(t, ok)
	require.Equal(t, int64(46), brRng.End-brRng.Start, "ByteRange placeholder must be the fixed 46-byte array literal")
}
