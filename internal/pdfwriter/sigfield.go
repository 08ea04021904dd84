package pdfwriter

import (
	"time"

	"github.com/digitorus/pdf"
)

// ContentsSlotSize is the fixed number of raw CAdES bytes the signature
// dictionary's /Contents hex string reserves (spec §4.C, §9 open question
// (c)). A CMS SignedData that doesn't fit fails with SignatureTooLarge.
const ContentsSlotSize = 8192

// CertType mirrors the digital-signature dictionary /Type values a
// signature field can take.
type CertType int

const (
	ApprovalSignature CertType = iota
	CertificationSignature
	TimeStampSignature
)

// DocMDPPerm is the /P entry of a /DocMDP transform params dictionary for a
// CertificationSignature.
type DocMDPPerm int

const (
	DocMDPNoChanges DocMDPPerm = iota + 1
	DocMDPFormFillingAllowed
	DocMDPAnnotationsAllowed
)

// SignatureInfo carries the human-readable fields of a signature
// dictionary.
type SignatureInfo struct {
	Name        string
	Reason      string
	Location    string
	ContactInfo string
}

// SigFieldResult is everything a caller needs after inserting a signature
// field: the ids to track for byte-range computation and the widget to
// wire onto a page's /Annots.
type SigFieldResult struct {
	WidgetID    ObjectID
	SignatureID ObjectID
}

// pdfDate renders t in PDF's "D:YYYYMMDDHHMMSSZ" date-string form.
func pdfDate(t time.Time) String {
	return String(t.UTC().Format("D:20060102150405") + "Z")
}

// AddSignatureField allocates the signature widget annotation and its
// signature dictionary (spec §4.C), reserving a fixed-width /Contents hex
// placeholder and /ByteRange array placeholder that the CAdES signer
// (internal/cades) patches in place once Finalize has run.
//
// rect is the widget's PDF-space rectangle [llx, lly, urx, ury]; page is
// the object id of the page the widget is placed on. appearance, if
// non-zero, is a Form XObject reference used as the widget's /AP /N.
func (d *Document) AddSignatureField(rect [4]float64, page ObjectID, appearance ObjectID, certType CertType, perm DocMDPPerm, info SignatureInfo, signingTime time.Time) SigFieldResult {
	sigID := d.ReserveObjectID()
	widgetID := d.ReserveObjectID()

	sigDict := Dict{
		"Type":      Name("Sig"),
		"Filter":    Name("Adobe.PPKLite"),
		"SubFilter": Name("ETSI.CAdES.detached"),
		"Contents":  HexString(make([]byte, ContentsSlotSize)),
		"ByteRange": ByteRangePlaceholder,
		"M":         pdfDate(signingTime),
	}
	if info.Reason != "" {
		sigDict["Reason"] = String(info.Reason)
	}
	if info.Name != "" {
		sigDict["Name"] = String(info.Name)
	}
	if info.Location != "" {
		sigDict["Location"] = String(info.Location)
	}
	if info.ContactInfo != "" {
		sigDict["ContactInfo"] = String(info.ContactInfo)
	}

	switch certType {
	case CertificationSignature:
		refID := d.AddObject(Dict{
			"Type":           Name("SigRef"),
			"TransformMethod": Name("DocMDP"),
			"TransformParams": Dict{
				"Type": Name("TransformParams"),
				"P":    Int(perm),
				"V":    Name("1.2"),
			},
			"Data": Ref{ID: page}, // catalog reference filled by caller via UpdateObject if needed
		})
		sigDict["Reference"] = Array{Ref{ID: refID}}
	case TimeStampSignature:
		sigDict["Type"] = Name("DocTimeStamp")
		sigDict["SubFilter"] = Name("ETSI.RFC3161")
	}

	d.UpdateObject(sigID, sigDict)
	d.TrackDictKey(sigID, "Contents")
	d.TrackDictKey(sigID, "ByteRange")

	widgetDict := Dict{
		"Type":    Name("Annot"),
		"Subtype": Name("Widget"),
		"FT":      Name("Sig"),
		"Rect":    Array{Real(rect[0]), Real(rect[1]), Real(rect[2]), Real(rect[3])},
		"V":       Ref{ID: sigID},
		"F":       Int(132), // Print (bit 3) + Locked (bit 8) once signed
		"P":       Ref{ID: page},
	}
	if appearance != 0 {
		widgetDict["AP"] = Dict{"N": Ref{ID: appearance}}
	}

	d.UpdateObject(widgetID, widgetDict)

	return SigFieldResult{WidgetID: widgetID, SignatureID: sigID}
}

// EnsureAcroForm clones the catalog (and its /AcroForm, if present) into the
// new-objects map if this is the first signature field placed during this
// edit, sets /SigFlags 3, and appends widgetID to /Fields (spec §4.C: "The
// catalog's /AcroForm is ensured present with /SigFlags 3 and the widget id
// appended to /Fields").
func (d *Document) EnsureAcroForm(widgetID ObjectID) {
	root := d.reader.Trailer().Key("Root")
	rootID := ObjectID(root.GetPtr().GetID())

	var catalog Dict
	if existing, ok := d.objects[rootID]; ok {
		catalog = existing.value.(Dict)
	} else {
		catalog = Dict{}
		for _, k := range root.Keys() {
			if k == "AcroForm" {
				continue
			}
			catalog[Name(k)] = cloneRef(root.Key(k))
		}
	}

	acroForm := Dict{}
	var fields Array
	if af := root.Key("AcroForm"); af.Kind() == pdf.Dict {
		for _, k := range af.Keys() {
			if k == "Fields" {
				continue
			}
			acroForm[Name(k)] = cloneRef(af.Key(k))
		}
		if existingFields := af.Key("Fields"); existingFields.Kind() == pdf.Array {
			for i := 0; i < existingFields.Len(); i++ {
				fields = append(fields, cloneRef(existingFields.Index(i)))
			}
		}
	}
	if existingCatalogAF, ok := catalog["AcroForm"]; ok {
		if afd, ok := existingCatalogAF.(Dict); ok {
			acroForm = afd
			if f, ok := acroForm["Fields"].(Array); ok {
				fields = f
			}
		}
	}

	acroForm["SigFlags"] = Int(3)
	acroForm["Fields"] = append(fields, Ref{ID: widgetID})
	catalog["AcroForm"] = acroForm

	if rootID == 0 {
		rootID = d.ReserveObjectID()
		d.SetRoot(rootID)
	}
	d.UpdateObject(rootID, catalog)
}
