package httpapi

import (
	"context"
	"time"

	"github.com/esignhq/esign/internal/filestore"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/pdfwriter"
	"github.com/esignhq/esign/internal/signpipeline"
	"github.com/esignhq/esign/internal/tasks"
	"github.com/esignhq/esign/internal/typeid"
)

// Store is the subset of internal/store.Store the HTTP handlers need.
type Store interface {
	ListTemplates(ctx context.Context) ([]model.Template, error)
	GetTemplate(ctx context.Context, id typeid.Template) (*model.Template, error)
	CreateEnvelope(ctx context.Context, env *model.Envelope, recipients []model.EnvelopeRecipient, currentFileHash string) error
	GetEnvelope(ctx context.Context, id typeid.Envelope) (*model.Envelope, error)
	ListEnvelopes(ctx context.Context) ([]model.Envelope, error)
	GetRecipient(ctx context.Context, envelopeID typeid.Envelope, recipientID typeid.Recipient) (*model.EnvelopeRecipient, error)
	ListRecipients(ctx context.Context, envelopeID typeid.Envelope) ([]model.EnvelopeRecipient, error)
	AppendLog(ctx context.Context, entry *model.EnvelopeLog) error
}

// Renderer produces an envelope revision's bytes from field values;
// satisfied by *internal/signpipeline.Pipeline.
type Renderer interface {
	Apply(originalPDF []byte, values []signpipeline.FieldValue, info pdfwriter.SignatureInfo, signingTime time.Time) (*signpipeline.Result, error)
}

// Deps holds every collaborator the HTTP surface needs.
type Deps struct {
	Store       Store
	Files       filestore.Store
	FilesSigner *filestore.Signer
	Renderer    Renderer
	Auth        *Authenticator
	Tasks       tasks.Enqueuer
	SigInfo     pdfwriter.SignatureInfo
	NAT64Net    string
	StaticDir   string
}
