package pdfwriter

import (
	"bytes"
	"fmt"
)

// byteRangeWidth is the fixed width of the /ByteRange array literal this
// writer reserves: "[" + four space-separated 10-digit decimals + "]".
const byteRangeWidth = 1 + 10 + 1 + 10 + 1 + 10 + 1 + 10 + 1

// byteRangePlaceholder is the fixed-width /ByteRange value written when a
// signature dictionary is first built. It serializes as a valid (if
// meaningless) PDF array of four zero integers, so the document parses
// even before the real ranges are patched in.
type byteRangePlaceholder struct{}

// ByteRangePlaceholder is the initial /ByteRange value of a freshly built
// signature dictionary.
var ByteRangePlaceholder Value = byteRangePlaceholder{}

func (byteRangePlaceholder) serialize(buf *bytes.Buffer) {
	buf.Write(FormatByteRange(0, 0, 0, 0))
}

// FormatByteRange renders the final [a b c d] array literal at the fixed
// width byteRangePlaceholder reserved, zero-padding each value to 10
// decimal digits.
func FormatByteRange(a, b, c, d int64) []byte {
	s := fmt.Sprintf("[%010d %010d %010d %010d]", a, b, c, d)
	if len(s) != byteRangeWidth {
		panic("pdfwriter: byte range value exceeds reserved width")
	}
	return []byte(s)
}
