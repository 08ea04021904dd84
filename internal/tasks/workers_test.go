package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/require"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/mailer"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/pdfwriter"
	"github.com/esignhq/esign/internal/signpipeline"
	"github.com/esignhq/esign/internal/typeid"
)

type fakeStore struct {
	envelope   *model.Envelope
	recipients map[typeid.Recipient]*model.EnvelopeRecipient
	template   *model.Template
	log        []model.EnvelopeLog

	signCalls int
	signErr   error
}

func (f *fakeStore) GetEnvelope(context.Context, typeid.Envelope) (*model.Envelope, error) {
	return f.envelope, nil
}

func (f *fakeStore) GetRecipient(_ context.Context, _ typeid.Envelope, id typeid.Recipient) (*model.EnvelopeRecipient, error) {
	r, ok := f.recipients[id]
	if !ok {
		return nil, esignerr.Errorf(esignerr.NotFound, "fakeStore.GetRecipient", "no such recipient")
	}
	return r, nil
}

func (f *fakeStore) ListRecipients(context.Context, typeid.Envelope) ([]model.EnvelopeRecipient, error) {
	var out []model.EnvelopeRecipient
	for _, r := range f.recipients {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) GetTemplate(context.Context, typeid.Template) (*model.Template, error) {
	return f.template, nil
}

func (f *fakeStore) NextIncompleteRecipient(context.Context, typeid.Envelope) (*model.EnvelopeRecipient, error) {
	for _, r := range f.recipients {
		if !r.Completed {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SignEnvelope(_ context.Context, _ typeid.Envelope, recipientID typeid.Recipient, newCurrentFile string, entry *model.EnvelopeLog) error {
	f.signCalls++
	if f.signErr != nil {
		return f.signErr
	}
	f.recipients[recipientID].Completed = true
	f.envelope.CurrentFile = newCurrentFile
	entry.CurrentFile = newCurrentFile
	f.log = append(f.log, *entry)
	return nil
}

func (f *fakeStore) ListLog(context.Context, typeid.Envelope) ([]model.EnvelopeLog, error) {
	return f.log, nil
}

type fakeFiles struct {
	files map[string][]byte
	next  int
}

func newFakeFiles() *fakeFiles { return &fakeFiles{files: map[string][]byte{}} }

func (f *fakeFiles) Put(_ context.Context, data []byte) (string, error) {
	f.next++
	name := "rev" + string(rune('0'+f.next)) + ".pdf"
	f.files[name] = data
	return name, nil
}

func (f *fakeFiles) Get(_ context.Context, path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, esignerr.Errorf(esignerr.NotFound, "fakeFiles.Get", "no such file")
	}
	return data, nil
}

type fakeRenderer struct {
	calls int
	err   error
}

func (r *fakeRenderer) Apply(originalPDF []byte, _ []signpipeline.FieldValue, _ pdfwriter.SignatureInfo, _ time.Time) (*signpipeline.Result, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &signpipeline.Result{Bytes: append(append([]byte{}, originalPDF...), []byte("-signed")...)}, nil
}

type fakeMailer struct {
	sent []string
}

func (m *fakeMailer) Send(to, _, _ string) error { m.sent = append(m.sent, to); return nil }

func (m *fakeMailer) SendWithAttachments(to, _, _ string, _ []mailer.Attachment) error {
	m.sent = append(m.sent, to)
	return nil
}

type fakeEnqueuer struct {
	progressed []ProgressEnvelopeArgs
	requested  []RequestSignatureArgs
	finalized  []SendFinalArgs
}

func (e *fakeEnqueuer) EnqueueSignEnvelope(context.Context, SignEnvelopeArgs) error { return nil }

func (e *fakeEnqueuer) EnqueueProgressEnvelope(_ context.Context, args ProgressEnvelopeArgs) error {
	e.progressed = append(e.progressed, args)
	return nil
}

func (e *fakeEnqueuer) EnqueueRequestSignature(_ context.Context, args RequestSignatureArgs) error {
	e.requested = append(e.requested, args)
	return nil
}

func (e *fakeEnqueuer) EnqueueSendFinal(_ context.Context, args SendFinalArgs) error {
	e.finalized = append(e.finalized, args)
	return nil
}

func wrapJob[T river.JobArgs](args T) *river.Job[T] {
	return &river.Job[T]{JobRow: &rivertype.JobRow{}, Args: args}
}

func newFixture(t *testing.T) (*fakeStore, *fakeFiles, *fakeRenderer, *fakeMailer, *fakeEnqueuer, *Deps) {
	t.Helper()

	envelopeID := typeid.New[typeid.EnvelopePrefix]()
	templateID := typeid.New[typeid.TemplatePrefix]()
	r1 := typeid.New[typeid.RecipientPrefix]()
	r2 := typeid.New[typeid.RecipientPrefix]()

	st := &fakeStore{
		envelope: &model.Envelope{ID: envelopeID, TemplateID: templateID, BaseFile: "base.pdf", CurrentFile: "base.pdf"},
		recipients: map[typeid.Recipient]*model.EnvelopeRecipient{
			r1: {ID: r1, EnvelopeID: envelopeID, Email: "r1@example.com", RecipientOrder: 1, Key: "k1"},
			r2: {ID: r2, EnvelopeID: envelopeID, Email: "r2@example.com", RecipientOrder: 2, Key: "k2"},
		},
		template: &model.Template{
			ID: templateID,
			Fields: []model.TemplateField{
				{ID: "f1", SigningOrder: 1, FieldType: model.FieldSignature, Required: true, Page: 1},
			},
		},
	}
	files := newFakeFiles()
	files.files["base.pdf"] = []byte("%PDF-1.4 base")
	renderer := &fakeRenderer{}
	mail := &fakeMailer{}
	enq := &fakeEnqueuer{}

	deps := &Deps{
		Store:    st,
		Files:    files,
		Pipeline: renderer,
		Mail:     mail,
		Enqueuer: enq,
		BaseURL:  "https://esign.example.com",
		Now:      func() time.Time { return time.Unix(0, 0) },
	}
	return st, files, renderer, mail, enq, deps
}

func TestSignEnvelopeWorkerAdvancesAndEnqueuesProgress(t *testing.T) {
	st, _, renderer, _, enq, deps := newFixture(t)
	var r1 typeid.Recipient
	for id, r := range st.recipients {
		if r.RecipientOrder == 1 {
			r1 = id
		}
	}

	w := &SignEnvelopeWorker{Deps: deps}
	job := wrapJob(SignEnvelopeArgs{
		EnvelopeID:  st.envelope.ID,
		RecipientID: r1,
		Fields:      []FieldSubmission{{FieldID: "f1", Value: "John Doe"}},
		Meta:        ClientMeta{IPAddress: "203.0.113.1", UserAgent: "test-agent"},
	})

	err := w.Work(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, 1, renderer.calls)
	require.Equal(t, 1, st.signCalls)
	require.True(t, st.recipients[r1].Completed)
	require.Len(t, enq.progressed, 1)
	require.Equal(t, st.envelope.ID, enq.progressed[0].EnvelopeID)
}

func TestSignEnvelopeWorkerMissingRequiredFieldIsNotRetried(t *testing.T) {
	st, _, _, _, _, deps := newFixture(t)
	var r1 typeid.Recipient
	for id, r := range st.recipients {
		if r.RecipientOrder == 1 {
			r1 = id
		}
	}

	w := &SignEnvelopeWorker{Deps: deps}
	job := wrapJob(SignEnvelopeArgs{EnvelopeID: st.envelope.ID, RecipientID: r1})

	err := w.Work(context.Background(), job)
	require.Error(t, err)
	var cancelErr *river.JobCancelError
	require.ErrorAs(t, err, &cancelErr)
}

func TestProgressEnvelopeWorkerRequestsNextRecipient(t *testing.T) {
	st, _, _, _, enq, deps := newFixture(t)

	w := &ProgressEnvelopeWorker{Deps: deps}
	err := w.Work(context.Background(), wrapJob(ProgressEnvelopeArgs{EnvelopeID: st.envelope.ID}))
	require.NoError(t, err)
	require.Len(t, enq.requested, 1)
	require.Equal(t, 1, st.recipients[enq.requested[0].RecipientID].RecipientOrder)
}

func TestProgressEnvelopeWorkerSendsFinalWhenAllComplete(t *testing.T) {
	st, _, _, _, enq, deps := newFixture(t)
	for _, r := range st.recipients {
		r.Completed = true
	}

	w := &ProgressEnvelopeWorker{Deps: deps}
	err := w.Work(context.Background(), wrapJob(ProgressEnvelopeArgs{EnvelopeID: st.envelope.ID}))
	require.NoError(t, err)
	require.Empty(t, enq.requested)
	require.Len(t, enq.finalized, 1)
}

func TestRequestSignatureWorkerSendsEmailWithAttachments(t *testing.T) {
	st, _, _, mail, _, deps := newFixture(t)
	var r1 typeid.Recipient
	for id, r := range st.recipients {
		if r.RecipientOrder == 1 {
			r1 = id
		}
	}

	w := &RequestSignatureWorker{Deps: deps}
	err := w.Work(context.Background(), wrapJob(RequestSignatureArgs{EnvelopeID: st.envelope.ID, RecipientID: r1}))
	require.NoError(t, err)
	require.Equal(t, []string{"r1@example.com"}, mail.sent)
}

func TestSendFinalWorkerEmailsEveryRecipient(t *testing.T) {
	st, _, _, mail, _, deps := newFixture(t)

	w := &SendFinalWorker{Deps: deps}
	err := w.Work(context.Background(), wrapJob(SendFinalArgs{EnvelopeID: st.envelope.ID}))
	require.NoError(t, err)
	require.Len(t, mail.sent, len(st.recipients))
}
