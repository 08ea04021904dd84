// Package model defines the persisted entities of the esign service: the
// template/field catalogue, envelopes, recipients, and the append-only
// envelope audit log (spec §3).
package model

import (
	"time"

	"github.com/esignhq/esign/internal/typeid"
)

// FieldType enumerates the kinds of fillable field a template can place.
type FieldType string

const (
	FieldSignature FieldType = "signature"
	FieldText      FieldType = "text"
	FieldDate      FieldType = "date"
	FieldCheckbox  FieldType = "checkbox"
)

// Rect is a normalised rectangle in [0,1]^4, measured from the page's
// top-left corner, as stored for a TemplateField.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TemplateField describes one fillable location on a Template's pages.
type TemplateField struct {
	ID string `json:"id" db:"id"`

	// SigningOrder is 0 for the sender, 1..N for the k-th recipient.
	SigningOrder int       `json:"signing_order" db:"signing_order"`
	FieldType    FieldType `json:"field_type" db:"field_type"`
	Required     bool      `json:"required" db:"required"`

	// Page is 1-based.
	Page uint32 `json:"page" db:"page"`
	Rect Rect   `json:"rect" db:"rect"`
}

// Template is an immutable reference PDF plus its fillable fields.
type Template struct {
	ID       typeid.Template `json:"id" db:"id"`
	BaseFile string          `json:"base_file" db:"base_file"`
	Fields   []TemplateField `json:"fields" db:"-"`
}

// RecipientCount returns the highest signing_order present among the
// template's fields, i.e. the number of recipients (order 0 excluded) a
// fully-populated envelope over this template would need.
func (t *Template) RecipientCount() int {
	max := 0
	for _, f := range t.Fields {
		if f.SigningOrder > max {
			max = f.SigningOrder
		}
	}
	return max
}

// FieldsForOrder returns the subset of fields assigned to signingOrder.
func (t *Template) FieldsForOrder(signingOrder int) []TemplateField {
	var out []TemplateField
	for _, f := range t.Fields {
		if f.SigningOrder == signingOrder {
			out = append(out, f)
		}
	}
	return out
}

// Envelope is one instantiation of a Template sent to an ordered list of
// recipients. BaseFile never changes; CurrentFile advances after every
// recipient signs.
type Envelope struct {
	ID          typeid.Envelope `json:"id" db:"id"`
	TemplateID  typeid.Template `json:"template_id" db:"template_id"`
	BaseFile    string          `json:"base_file" db:"base_file"`
	CurrentFile string          `json:"current_file" db:"current_file"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// EnvelopeRecipient is one recipient's slot within an Envelope.
type EnvelopeRecipient struct {
	ID             typeid.Recipient `json:"id" db:"id"`
	EnvelopeID     typeid.Envelope  `json:"envelope_id" db:"envelope_id"`
	Email          string           `json:"email" db:"email"`
	RecipientOrder int              `json:"recipient_order" db:"recipient_order"`

	// Key is >=64 random bytes, URL-safe base64 encoded; unique per
	// recipient, used to authenticate the recipient's signing link.
	Key string `json:"-" db:"key"`

	Completed bool `json:"completed" db:"completed"`
}

// IsSender reports whether this recipient slot is signing_order 0, the
// sender, who is always completed=true on creation.
func (r *EnvelopeRecipient) IsSender() bool {
	return r.RecipientOrder == 0
}

// EntryType enumerates the kinds of EnvelopeLog entry.
type EntryType string

const (
	EntryCreated    EntryType = "Created"
	EntryOpened     EntryType = "Opened"
	EntryDownloaded EntryType = "Downloaded"
	EntrySigned     EntryType = "Signed"
)

// EnvelopeLog is one append-only audit entry. Entries are never mutated or
// deleted once written.
type EnvelopeLog struct {
	ID         typeid.LogEntry  `json:"id" db:"id"`
	EnvelopeID typeid.Envelope  `json:"envelope_id" db:"envelope_id"`
	Timestamp  time.Time        `json:"timestamp" db:"timestamp"`
	RecipientID *typeid.Recipient `json:"recipient_id,omitempty" db:"recipient_id"`

	EntryType EntryType `json:"entry_type" db:"entry_type"`

	IPAddress string `json:"ip_address" db:"ip_address"`
	UserAgent string `json:"user_agent" db:"user_agent"`

	CurrentFile string `json:"current_file" db:"current_file"`
	// CurrentDocumentHash is the SHA-512 of CurrentFile's bytes at the
	// moment this entry was written, hex-encoded.
	CurrentDocumentHash string `json:"current_document_hash" db:"current_document_hash"`
}
