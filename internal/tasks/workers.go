package tasks

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/mailer"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/signpipeline"
)

// SignEnvelopeWorker implements the sign_envelope task.
type SignEnvelopeWorker struct {
	river.WorkerDefaults[SignEnvelopeArgs]
	Deps *Deps
}

func (w *SignEnvelopeWorker) Work(ctx context.Context, job *river.Job[SignEnvelopeArgs]) error {
	args := job.Args

	env, err := w.Deps.Store.GetEnvelope(ctx, args.EnvelopeID)
	if err != nil {
		return classify(err)
	}
	recipient, err := w.Deps.Store.GetRecipient(ctx, args.EnvelopeID, args.RecipientID)
	if err != nil {
		return classify(err)
	}
	tmpl, err := w.Deps.Store.GetTemplate(ctx, env.TemplateID)
	if err != nil {
		return classify(err)
	}

	submissions := make(map[string]FieldSubmission, len(args.Fields))
	for _, f := range args.Fields {
		submissions[f.FieldID] = f
	}

	var values []signpipeline.FieldValue
	for _, field := range tmpl.FieldsForOrder(recipient.RecipientOrder) {
		sub, ok := submissions[field.ID]
		if field.Required && !ok {
			return classify(esignerr.Errorf(esignerr.InvalidInput, "tasks.SignEnvelopeWorker", "missing required field %s", field.ID))
		}
		values = append(values, signpipeline.FieldValue{Field: field, Value: sub.Value, PNG: sub.PNG})
	}

	current, err := w.Deps.Files.Get(ctx, env.CurrentFile)
	if err != nil {
		return classify(err)
	}

	result, err := w.Deps.Pipeline.Apply(current, values, w.Deps.SigInfo, w.Deps.now())
	if err != nil {
		return classify(err)
	}

	newPath, err := w.Deps.Files.Put(ctx, result.Bytes)
	if err != nil {
		return classify(err)
	}

	sum := sha512.Sum512(result.Bytes)
	entry := &model.EnvelopeLog{
		IPAddress:           args.Meta.IPAddress,
		UserAgent:           args.Meta.UserAgent,
		CurrentDocumentHash: hex.EncodeToString(sum[:]),
	}
	if err := w.Deps.Store.SignEnvelope(ctx, args.EnvelopeID, args.RecipientID, newPath, entry); err != nil {
		return classify(err)
	}

	if w.Deps.Enqueuer == nil {
		return nil
	}
	return classify(w.Deps.Enqueuer.EnqueueProgressEnvelope(ctx, ProgressEnvelopeArgs{EnvelopeID: args.EnvelopeID}))
}

// ProgressEnvelopeWorker implements the progress_envelope task: "Selects
// the lowest recipient_order recipient with completed=false; if present,
// enqueues request_signature; otherwise send_final."
type ProgressEnvelopeWorker struct {
	river.WorkerDefaults[ProgressEnvelopeArgs]
	Deps *Deps
}

func (w *ProgressEnvelopeWorker) Work(ctx context.Context, job *river.Job[ProgressEnvelopeArgs]) error {
	envelopeID := job.Args.EnvelopeID

	next, err := w.Deps.Store.NextIncompleteRecipient(ctx, envelopeID)
	if err != nil {
		return classify(err)
	}
	if w.Deps.Enqueuer == nil {
		return nil
	}
	if next != nil {
		return classify(w.Deps.Enqueuer.EnqueueRequestSignature(ctx, RequestSignatureArgs{EnvelopeID: envelopeID, RecipientID: next.ID}))
	}
	return classify(w.Deps.Enqueuer.EnqueueSendFinal(ctx, SendFinalArgs{EnvelopeID: envelopeID}))
}

// RequestSignatureWorker implements the request_signature task: "Renders
// email, attaches current PDF and JSON log, sends."
type RequestSignatureWorker struct {
	river.WorkerDefaults[RequestSignatureArgs]
	Deps *Deps
}

func (w *RequestSignatureWorker) Work(ctx context.Context, job *river.Job[RequestSignatureArgs]) error {
	args := job.Args

	env, err := w.Deps.Store.GetEnvelope(ctx, args.EnvelopeID)
	if err != nil {
		return classify(err)
	}
	recipient, err := w.Deps.Store.GetRecipient(ctx, args.EnvelopeID, args.RecipientID)
	if err != nil {
		return classify(err)
	}
	pdfBytes, err := w.Deps.Files.Get(ctx, env.CurrentFile)
	if err != nil {
		return classify(err)
	}
	logEntries, err := w.Deps.Store.ListLog(ctx, args.EnvelopeID)
	if err != nil {
		return classify(err)
	}
	logJSON, err := json.Marshal(logEntries)
	if err != nil {
		return classify(esignerr.New(esignerr.Unknown, "tasks.RequestSignatureWorker", fmt.Errorf("marshal log: %w", err)))
	}

	link := fmt.Sprintf("%s/envelope/%s/sign/%s?key=%s", w.Deps.BaseURL, args.EnvelopeID, args.RecipientID, recipient.Key)
	body := fmt.Sprintf("You have a document to review and sign: %s", link)

	err = w.Deps.Mail.SendWithAttachments(recipient.Email, "A document is waiting for your signature", body, []mailer.Attachment{
		{Filename: "document.pdf", ContentType: "application/pdf", Data: pdfBytes},
		{Filename: "log.json", ContentType: "application/json", Data: logJSON},
	})
	// spec.md §4.F idempotence (c): duplicate e-mail delivery on retry is
	// tolerated, so a transport failure is simply retried.
	return classify(err)
}

// SendFinalWorker implements the send_final task: "Renders completion
// email, attaches final PDF and log, sends to every recipient."
type SendFinalWorker struct {
	river.WorkerDefaults[SendFinalArgs]
	Deps *Deps
}

func (w *SendFinalWorker) Work(ctx context.Context, job *river.Job[SendFinalArgs]) error {
	envelopeID := job.Args.EnvelopeID

	env, err := w.Deps.Store.GetEnvelope(ctx, envelopeID)
	if err != nil {
		return classify(err)
	}
	recipients, err := w.Deps.Store.ListRecipients(ctx, envelopeID)
	if err != nil {
		return classify(err)
	}
	pdfBytes, err := w.Deps.Files.Get(ctx, env.CurrentFile)
	if err != nil {
		return classify(err)
	}
	logEntries, err := w.Deps.Store.ListLog(ctx, envelopeID)
	if err != nil {
		return classify(err)
	}
	logJSON, err := json.Marshal(logEntries)
	if err != nil {
		return classify(esignerr.New(esignerr.Unknown, "tasks.SendFinalWorker", fmt.Errorf("marshal log: %w", err)))
	}

	attachments := []mailer.Attachment{
		{Filename: "document.pdf", ContentType: "application/pdf", Data: pdfBytes},
		{Filename: "log.json", ContentType: "application/json", Data: logJSON},
	}
	for _, r := range recipients {
		if err := w.Deps.Mail.SendWithAttachments(r.Email, "Your document has been fully signed", "The envelope is complete; the final, signed document is attached.", attachments); err != nil {
			return classify(err)
		}
	}
	return nil
}
