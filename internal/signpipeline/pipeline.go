// Package signpipeline composes components A-E (spec.md §2's incremental
// writer, field overlay renderer, signature field builder, CAdES signer, and
// HSM-backed key) into the single operation the F task set drives once per
// recipient submission: render the recipient's field values onto the
// current PDF, embed a PAdES signature over the appended update, and return
// the next revision's bytes.
package signpipeline

import (
	"bytes"
	"fmt"
	"time"

	"github.com/esignhq/esign/internal/cades"
	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/overlay"
	"github.com/esignhq/esign/internal/pdfwriter"
)

// FieldValue is one filled field submitted by a recipient (or the sender).
// Value holds literal text for Text/Date/Checkbox fields; PNG holds the
// client-rasterised signature image for Signature fields.
type FieldValue struct {
	Field model.TemplateField
	Value string
	PNG   []byte
}

// Signer produces the cryptographic signature over a revision; nil means no
// signing key is configured and the revision is overlay-only, matching
// spec.md §2's "if a signing key is configured, C inserts signature
// objects".
type Signer = cades.Signer

// Pipeline drives one envelope revision: overlay rendering plus, if a
// Signer is configured, a PAdES-B-T signature field.
type Pipeline struct {
	Signer *Signer
}

// Result is the outcome of rendering and (optionally) signing one revision.
type Result struct {
	Bytes []byte
}

// pageObjectID resolves the object id of field.Page (1-based) by walking the
// page tree rooted at /Root/Pages.
func pageObjectID(doc *pdfwriter.Document, pageNumber uint32) (pdfwriter.ObjectID, error) {
	pagesRoot := doc.Reader().Trailer().Key("Root").Key("Pages")
	kids := pagesRoot.Key("Kids")
	if kids.Len() == 0 {
		return 0, esignerr.Errorf(esignerr.PdfError, "signpipeline.pageObjectID", "document has no pages")
	}
	idx := int(pageNumber) - 1
	if idx < 0 || idx >= kids.Len() {
		return 0, esignerr.Errorf(esignerr.PdfError, "signpipeline.pageObjectID", "page %d out of range (%d pages)", pageNumber, kids.Len())
	}
	return pdfwriter.ObjectID(kids.Index(idx).GetPtr().GetID()), nil
}

// Apply renders values onto originalPDF and, if p.Signer is set, embeds a
// CAdES-detached PAdES signature over the resulting incremental update,
// returning the next revision's complete bytes.
func (p *Pipeline) Apply(originalPDF []byte, values []FieldValue, info pdfwriter.SignatureInfo, signingTime time.Time) (*Result, error) {
	doc, err := pdfwriter.Open(bytes.NewReader(originalPDF), int64(len(originalPDF)))
	if err != nil {
		return nil, esignerr.New(esignerr.PdfError, "signpipeline.Apply", fmt.Errorf("open document: %w", err))
	}

	renderer := overlay.NewRenderer(doc)

	byPage := make(map[uint32][]FieldValue)
	pageOrder := make([]uint32, 0)
	for _, v := range values {
		if _, ok := byPage[v.Field.Page]; !ok {
			pageOrder = append(pageOrder, v.Field.Page)
		}
		byPage[v.Field.Page] = append(byPage[v.Field.Page], v)
	}

	var signaturePage uint32
	var signatureAppearance pdfwriter.ObjectID
	var signatureRect [4]float64

	editors := make(map[uint32]*pdfwriter.PageEditor, len(pageOrder))
	for _, pageNum := range pageOrder {
		pageID, err := pageObjectID(doc, pageNum)
		if err != nil {
			return nil, err
		}
		pe, err := doc.LoadPage(pageID)
		if err != nil {
			return nil, esignerr.New(esignerr.PdfError, "signpipeline.Apply", fmt.Errorf("load page %d: %w", pageNum, err))
		}
		editors[pageNum] = pe

		for _, v := range byPage[pageNum] {
			if err := renderer.RenderField(pe, v.Field, v.Value, v.PNG); err != nil {
				return nil, err
			}
			if v.Field.FieldType == model.FieldSignature && signaturePage == 0 {
				signaturePage = pageNum
				signatureRect = fieldRectToPDF(pe, v.Field)
			}
		}
	}

	var sigFieldID pdfwriter.ObjectID
	var sigResult pdfwriter.SigFieldResult
	needsSignature := p.Signer != nil
	if needsSignature {
		if signaturePage == 0 {
			// No hand-drawn-signature field in this revision's values; place
			// an invisible signature field on page 1, spec.md §4.C does not
			// require a visible appearance.
			signaturePage = 1
			signatureRect = [4]float64{0, 0, 0, 0}
			if _, ok := editors[signaturePage]; !ok {
				pageID, err := pageObjectID(doc, signaturePage)
				if err != nil {
					return nil, err
				}
				pe, err := doc.LoadPage(pageID)
				if err != nil {
					return nil, esignerr.New(esignerr.PdfError, "signpipeline.Apply", fmt.Errorf("load page 1: %w", err))
				}
				editors[signaturePage] = pe
				pageOrder = append(pageOrder, signaturePage)
			}
		}

		pageID, err := pageObjectID(doc, signaturePage)
		if err != nil {
			return nil, err
		}
		sigResult = doc.AddSignatureField(signatureRect, pageID, signatureAppearance, pdfwriter.ApprovalSignature, 0, info, signingTime)
		sigFieldID = sigResult.SignatureID
		editors[signaturePage].AddAnnotation(sigResult.WidgetID)
		doc.EnsureAcroForm(sigResult.WidgetID)
	}

	for _, pe := range editors {
		if err := pe.Commit(); err != nil {
			return nil, esignerr.New(esignerr.PdfError, "signpipeline.Apply", fmt.Errorf("commit page: %w", err))
		}
	}

	finalized, err := doc.Finalize(originalPDF)
	if err != nil {
		return nil, esignerr.New(esignerr.PdfError, "signpipeline.Apply", fmt.Errorf("finalize: %w", err))
	}

	if needsSignature {
		if err := p.Signer.SignDocument(finalized, sigFieldID, false); err != nil {
			return nil, err
		}
	}

	return &Result{Bytes: finalized.Bytes}, nil
}

func fieldRectToPDF(pe *pdfwriter.PageEditor, field model.TemplateField) [4]float64 {
	pr := overlay.ToPDFSpace(pe.MediaBox(), field.Rect)
	return [4]float64{pr.X, pr.Y, pr.X + pr.W, pr.Y + pr.H}
}
