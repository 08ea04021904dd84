// Package tasks implements spec.md §4.F's envelope progression state
// machine as a set of queue-driven jobs: sign_envelope, progress_envelope,
// request_signature, send_final, each enqueuing the next on completion.
//
// spec.md §6 names AMQP as the transport; the retrieved corpus carries no
// AMQP client, so this package is written against the small Enqueuer
// interface below and concretely driven by riverqueue/river against the
// same Postgres instance internal/store uses (see DESIGN.md Open Question
// (d)). River already provides the at-least-once delivery, late
// acknowledgement (a job is only marked complete after Work returns nil),
// and per-queue concurrency limit spec.md requires.
package tasks

import (
	"context"
	"time"

	"github.com/riverqueue/river"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/mailer"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/pdfwriter"
	"github.com/esignhq/esign/internal/signpipeline"
	"github.com/esignhq/esign/internal/typeid"
)

// FieldSubmission is one recipient-supplied field value, keyed by the
// template field id it fills.
type FieldSubmission struct {
	FieldID string `json:"field_id"`
	Value   string `json:"value,omitempty"`
	PNG     []byte `json:"png,omitempty"`
}

// ClientMeta carries the HTTP request metadata spec.md §3's envelope_log
// rows record alongside a Signed entry.
type ClientMeta struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// SignEnvelopeArgs is the payload for the sign_envelope task (spec.md
// §4.F): "Produces the next revision of the PDF, writes Signed log entry
// and updates envelope.current_file inside one DB transaction, enqueues
// progress_envelope."
type SignEnvelopeArgs struct {
	EnvelopeID  typeid.Envelope   `json:"envelope_id"`
	RecipientID typeid.Recipient  `json:"recipient_id"`
	Fields      []FieldSubmission `json:"fields"`
	Meta        ClientMeta        `json:"meta"`
}

// Kind implements river.JobArgs.
func (SignEnvelopeArgs) Kind() string { return "sign_envelope" }

// ProgressEnvelopeArgs is the payload for the progress_envelope task.
type ProgressEnvelopeArgs struct {
	EnvelopeID typeid.Envelope `json:"envelope_id"`
}

// Kind implements river.JobArgs.
func (ProgressEnvelopeArgs) Kind() string { return "progress_envelope" }

// RequestSignatureArgs is the payload for the request_signature task.
type RequestSignatureArgs struct {
	EnvelopeID  typeid.Envelope  `json:"envelope_id"`
	RecipientID typeid.Recipient `json:"recipient_id"`
}

// Kind implements river.JobArgs.
func (RequestSignatureArgs) Kind() string { return "request_signature" }

// SendFinalArgs is the payload for the send_final task.
type SendFinalArgs struct {
	EnvelopeID typeid.Envelope `json:"envelope_id"`
}

// Kind implements river.JobArgs.
func (SendFinalArgs) Kind() string { return "send_final" }

// Enqueuer chains one task to the next (spec.md §4.F's state diagram).
// Implemented concretely by RiverEnqueuer.
type Enqueuer interface {
	EnqueueSignEnvelope(ctx context.Context, args SignEnvelopeArgs) error
	EnqueueProgressEnvelope(ctx context.Context, args ProgressEnvelopeArgs) error
	EnqueueRequestSignature(ctx context.Context, args RequestSignatureArgs) error
	EnqueueSendFinal(ctx context.Context, args SendFinalArgs) error
}

// EnvelopeStore is the subset of internal/store.Store the task workers
// need; narrowed to an interface so workers can be tested against fakes
// without a database.
type EnvelopeStore interface {
	GetEnvelope(ctx context.Context, id typeid.Envelope) (*model.Envelope, error)
	GetRecipient(ctx context.Context, envelopeID typeid.Envelope, recipientID typeid.Recipient) (*model.EnvelopeRecipient, error)
	ListRecipients(ctx context.Context, envelopeID typeid.Envelope) ([]model.EnvelopeRecipient, error)
	GetTemplate(ctx context.Context, id typeid.Template) (*model.Template, error)
	NextIncompleteRecipient(ctx context.Context, envelopeID typeid.Envelope) (*model.EnvelopeRecipient, error)
	SignEnvelope(ctx context.Context, envelopeID typeid.Envelope, recipientID typeid.Recipient, newCurrentFile string, entry *model.EnvelopeLog) error
	ListLog(ctx context.Context, envelopeID typeid.Envelope) ([]model.EnvelopeLog, error)
}

// FileStore is the subset of internal/filestore.Store the task workers
// need.
type FileStore interface {
	Put(ctx context.Context, data []byte) (path string, err error)
	Get(ctx context.Context, path string) ([]byte, error)
}

// Renderer produces the next signed revision of a document; satisfied by
// *internal/signpipeline.Pipeline.
type Renderer interface {
	Apply(originalPDF []byte, values []signpipeline.FieldValue, info pdfwriter.SignatureInfo, signingTime time.Time) (*signpipeline.Result, error)
}

// Mailer is the subset of internal/mailer.Mailer the task workers need.
type Mailer interface {
	Send(to, subject, body string) error
	SendWithAttachments(to, subject, body string, attachments []mailer.Attachment) error
}

// Deps holds every collaborator the four task workers share. Enqueuer is
// populated after the river client is constructed (SetEnqueuer), breaking
// the construction cycle between "the workers need an enqueuer" and "the
// enqueuer wraps the client the workers are registered against".
type Deps struct {
	Store    EnvelopeStore
	Files    FileStore
	Pipeline Renderer
	Mail     Mailer
	Enqueuer Enqueuer
	SigInfo  pdfwriter.SignatureInfo
	BaseURL  string
	Now      func() time.Time
}

// SetEnqueuer binds d.Enqueuer after the river.Client wrapping it has been
// constructed.
func (d *Deps) SetEnqueuer(e Enqueuer) { d.Enqueuer = e }

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// classify maps a domain error to either a retryable error (river retries
// with backoff) or a cancelled job (river.JobCancel stops retrying),
// implementing SPEC_FULL.md §4's ERROR KIND → TASK mapping: InvalidInput/
// AuthFailure/Expired/NotFound/PdfError/UnsupportedImage/SignatureTooLarge
// are "UnexpectedError" (retrying the same input can't help); StorageError/
// TsaFailure/HsmFailure are "ExpectedError" (transient, worth retrying).
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch esignerr.KindOf(err) {
	case esignerr.InvalidInput, esignerr.AuthFailure, esignerr.Expired, esignerr.NotFound,
		esignerr.PdfError, esignerr.UnsupportedImage, esignerr.SignatureTooLarge:
		return river.JobCancel(err)
	default:
		return err
	}
}
