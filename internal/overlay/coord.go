// Package overlay is the field overlay renderer (spec.md §4.B / SPEC_FULL.md
// component B): for each filled template field it emits either a text or PNG
// XObject placement at a page-relative rectangle, writing directly against
// internal/pdfwriter's object graph rather than re-serialising the page.
package overlay

import (
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/pdfwriter"
)

// PDFRect is a placement rectangle in PDF user-space units, bottom-left
// anchored, matching the coordinate system content-stream operators use.
type PDFRect struct {
	X, Y, W, H float64
}

// ToPDFSpace maps a normalised, top-left-origin field rectangle onto the
// page's MediaBox, per spec.md §4.B:
//
//	x = llx + left·W
//	y = lly + (ury − top·H) − h
//	w = W·width
//	h = H·height
func ToPDFSpace(box pdfwriter.MediaBox, r model.Rect) PDFRect {
	w := box.Width()
	h := box.Height()
	rw := w * r.Width
	rh := h * r.Height
	return PDFRect{
		X: box.LLX + r.Left*w,
		Y: box.LLY + (box.URY - r.Top*h) - rh,
		W: rw,
		H: rh,
	}
}

// ToNormalised is the inverse of ToPDFSpace, recovering the top-left-origin
// normalised rectangle a PDFRect came from. Used to assert the round-trip
// invariant of spec.md §8 ("coordinate transform idempotence").
func ToNormalised(box pdfwriter.MediaBox, pr PDFRect) model.Rect {
	w := box.Width()
	h := box.Height()
	return model.Rect{
		Left:   (pr.X - box.LLX) / w,
		Width:  pr.W / w,
		Height: pr.H / h,
		Top:    (box.LLY + box.URY - pr.H - pr.Y) / h,
	}
}
