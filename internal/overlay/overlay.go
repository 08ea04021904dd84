package overlay

import (
	"bytes"
	"compress/zlib"
	"fmt"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/pdfwriter"
)

// fontResourceName is the shared Type1 Helvetica resource spec.md §4.B
// names explicitly.
const fontResourceName = pdfwriter.Name("F_esign_Helvetica")

// Renderer places filled template-field values onto a document's pages,
// writing directly against a pdfwriter.Document (spec.md §4.B). One Renderer
// is scoped to a single document edit so the shared Helvetica font object is
// allocated at most once.
type Renderer struct {
	doc       *pdfwriter.Document
	helvetica *pdfwriter.ObjectID
}

// NewRenderer returns a Renderer writing new objects into doc.
func NewRenderer(doc *pdfwriter.Document) *Renderer {
	return &Renderer{doc: doc}
}

// ensureHelvetica allocates (once per Renderer) the shared base-14 Type1
// Helvetica font object spec.md §4.B requires as /F_esign_Helvetica.
func (r *Renderer) ensureHelvetica() pdfwriter.ObjectID {
	if r.helvetica != nil {
		return *r.helvetica
	}
	id := r.doc.AddObject(pdfwriter.Dict{
		"Type":     pdfwriter.Name("Font"),
		"Subtype":  pdfwriter.Name("Type1"),
		"BaseFont": pdfwriter.Name("Helvetica"),
		"Encoding": pdfwriter.Name("WinAnsiEncoding"),
	})
	r.helvetica = &id
	return id
}

// RenderText overlays text at field's rectangle on pe's page, per spec.md
// §4.B: "BT /Tf F_esign_Helvetica h /Td x y /Tj (text) /ET".
func (r *Renderer) RenderText(pe *pdfwriter.PageEditor, field model.TemplateField, text string) {
	fontID := r.ensureHelvetica()
	pe.EnsureFont(fontResourceName, fontID)

	pr := ToPDFSpace(pe.MediaBox(), field.Rect)
	fontSize := pr.H
	if fontSize <= 0 {
		fontSize = 10
	}

	var ops bytes.Buffer
	fmt.Fprintf(&ops, "BT /%s %.2f Tf %.2f %.2f Td (%s) Tj ET",
		string(fontResourceName), fontSize, pr.X, pr.Y, escapeLiteral(text))
	pe.AppendContent(ops.Bytes())
}

// RenderImage overlays a PNG at field's rectangle on pe's page, per spec.md
// §4.B's decode/split/compress/encode pipeline.
func (r *Renderer) RenderImage(pe *pdfwriter.PageEditor, field model.TemplateField, png []byte) error {
	img, err := decodePNG(png)
	if err != nil {
		return err
	}

	colorSpace := pdfwriter.Name("DeviceGray")
	if img.Color == colorRGB || img.Color == colorRGBA {
		colorSpace = pdfwriter.Name("DeviceRGB")
	}

	var smaskRef pdfwriter.Value
	if img.AlphaPlane != nil {
		smaskID := r.doc.AddObject(pdfwriter.Stream{
			Dict: pdfwriter.Dict{
				"Type":             pdfwriter.Name("XObject"),
				"Subtype":          pdfwriter.Name("Image"),
				"Width":            pdfwriter.Int(img.Width),
				"Height":           pdfwriter.Int(img.Height),
				"ColorSpace":       pdfwriter.Name("DeviceGray"),
				"BitsPerComponent": pdfwriter.Int(8),
				"Filter":           pdfwriter.Array{pdfwriter.Name("ASCIIHexDecode"), pdfwriter.Name("FlateDecode")},
			},
			Data: asciiHexFlate(img.AlphaPlane),
		})
		smaskRef = pdfwriter.Ref{ID: smaskID}
	}

	imgDict := pdfwriter.Dict{
		"Type":             pdfwriter.Name("XObject"),
		"Subtype":          pdfwriter.Name("Image"),
		"Width":            pdfwriter.Int(img.Width),
		"Height":           pdfwriter.Int(img.Height),
		"ColorSpace":       colorSpace,
		"BitsPerComponent": pdfwriter.Int(img.BitDepth),
		"Filter":           pdfwriter.Array{pdfwriter.Name("ASCIIHexDecode"), pdfwriter.Name("FlateDecode")},
	}
	if smaskRef != nil {
		imgDict["SMask"] = smaskRef
	}
	imgID := r.doc.AddObject(pdfwriter.Stream{Dict: imgDict, Data: asciiHexFlate(img.ColorPlane)})

	name := pe.AddXObject(imgID)
	pr := ToPDFSpace(pe.MediaBox(), field.Rect)

	var ops bytes.Buffer
	fmt.Fprintf(&ops, "q %.4f 0 0 %.4f %.4f %.4f cm /%s Do Q", pr.W, pr.H, pr.X, pr.Y, string(name))
	pe.AppendContent(ops.Bytes())
	return nil
}

// RenderField dispatches a filled field's value onto pe by field type. value
// holds literal text for Text/Date/Checkbox fields and raw PNG bytes for
// Signature fields (the client-side-rasterised hand-drawn signature).
func (r *Renderer) RenderField(pe *pdfwriter.PageEditor, field model.TemplateField, value string, pngValue []byte) error {
	switch field.FieldType {
	case model.FieldSignature:
		if len(pngValue) == 0 {
			return esignerr.Errorf(esignerr.InvalidInput, "overlay.RenderField", "signature field %s has no image", field.ID)
		}
		return r.RenderImage(pe, field, pngValue)
	case model.FieldText, model.FieldDate, model.FieldCheckbox:
		r.RenderText(pe, field, value)
		return nil
	default:
		return esignerr.Errorf(esignerr.InvalidInput, "overlay.RenderField", "unknown field type %q", field.FieldType)
	}
}

func asciiHexFlate(data []byte) []byte {
	var deflated bytes.Buffer
	w := zlib.NewWriter(&deflated)
	_, _ = w.Write(data)
	_ = w.Close()

	hex := make([]byte, 0, deflated.Len()*2+1)
	const digits = "0123456789abcdef"
	for _, b := range deflated.Bytes() {
		hex = append(hex, digits[b>>4], digits[b&0x0f])
	}
	hex = append(hex, '>')
	return hex
}

func escapeLiteral(s string) string {
	var b bytes.Buffer
	for _, c := range []byte(s) {
		switch c {
		case '(', ')', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}
