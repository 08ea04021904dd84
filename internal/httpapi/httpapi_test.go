package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/filestore"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/pdfwriter"
	"github.com/esignhq/esign/internal/signpipeline"
	"github.com/esignhq/esign/internal/tasks"
	"github.com/esignhq/esign/internal/typeid"
)

type fakeStore struct {
	templates map[typeid.Template]*model.Template
	envelopes map[typeid.Envelope]*model.Envelope
	recipientsByEnvelope map[typeid.Envelope][]model.EnvelopeRecipient

	createCalls int
	lastRecipients []model.EnvelopeRecipient
	lastHash       string

	logEntries []model.EnvelopeLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates:            map[typeid.Template]*model.Template{},
		envelopes:            map[typeid.Envelope]*model.Envelope{},
		recipientsByEnvelope: map[typeid.Envelope][]model.EnvelopeRecipient{},
	}
}

func (s *fakeStore) ListTemplates(context.Context) ([]model.Template, error) {
	var out []model.Template
	for _, t := range s.templates {
		out = append(out, *t)
	}
	return out, nil
}

func (s *fakeStore) GetTemplate(_ context.Context, id typeid.Template) (*model.Template, error) {
	t, ok := s.templates[id]
	if !ok {
		return nil, esignerr.Errorf(esignerr.NotFound, "fakeStore.GetTemplate", "no template %s", id)
	}
	return t, nil
}

func (s *fakeStore) CreateEnvelope(_ context.Context, env *model.Envelope, recipients []model.EnvelopeRecipient, hash string) error {
	s.createCalls++
	s.envelopes[env.ID] = env
	s.recipientsByEnvelope[env.ID] = recipients
	s.lastRecipients = recipients
	s.lastHash = hash
	return nil
}

func (s *fakeStore) GetEnvelope(_ context.Context, id typeid.Envelope) (*model.Envelope, error) {
	e, ok := s.envelopes[id]
	if !ok {
		return nil, esignerr.Errorf(esignerr.NotFound, "fakeStore.GetEnvelope", "no envelope %s", id)
	}
	return e, nil
}

func (s *fakeStore) ListEnvelopes(context.Context) ([]model.Envelope, error) {
	var out []model.Envelope
	for _, e := range s.envelopes {
		out = append(out, *e)
	}
	return out, nil
}

func (s *fakeStore) GetRecipient(_ context.Context, envelopeID typeid.Envelope, recipientID typeid.Recipient) (*model.EnvelopeRecipient, error) {
	for _, r := range s.recipientsByEnvelope[envelopeID] {
		if r.ID == recipientID {
			cp := r
			return &cp, nil
		}
	}
	return nil, esignerr.Errorf(esignerr.NotFound, "fakeStore.GetRecipient", "no recipient %s", recipientID)
}

func (s *fakeStore) ListRecipients(_ context.Context, envelopeID typeid.Envelope) ([]model.EnvelopeRecipient, error) {
	return s.recipientsByEnvelope[envelopeID], nil
}

func (s *fakeStore) AppendLog(_ context.Context, entry *model.EnvelopeLog) error {
	s.logEntries = append(s.logEntries, *entry)
	return nil
}

type fakeFiles struct {
	files map[string][]byte
}

func newFakeFiles() *fakeFiles { return &fakeFiles{files: map[string][]byte{}} }

func (f *fakeFiles) Put(_ context.Context, data []byte) (string, error) {
	name := "file-1.pdf"
	f.files[name] = data
	return name, nil
}

func (f *fakeFiles) Get(_ context.Context, path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, esignerr.Errorf(esignerr.NotFound, "fakeFiles.Get", "no file %s", path)
	}
	return data, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Apply(original []byte, values []signpipeline.FieldValue, _ pdfwriter.SignatureInfo, _ time.Time) (*signpipeline.Result, error) {
	out := append(append([]byte{}, original...), []byte("-rendered")...)
	return &signpipeline.Result{Bytes: out}, nil
}

type fakeEnqueuer struct {
	progressed []tasks.ProgressEnvelopeArgs
	signed     []tasks.SignEnvelopeArgs
}

func (f *fakeEnqueuer) EnqueueSignEnvelope(_ context.Context, args tasks.SignEnvelopeArgs) error {
	f.signed = append(f.signed, args)
	return nil
}
func (f *fakeEnqueuer) EnqueueProgressEnvelope(_ context.Context, args tasks.ProgressEnvelopeArgs) error {
	f.progressed = append(f.progressed, args)
	return nil
}
func (f *fakeEnqueuer) EnqueueRequestSignature(context.Context, tasks.RequestSignatureArgs) error {
	return nil
}
func (f *fakeEnqueuer) EnqueueSendFinal(context.Context, tasks.SendFinalArgs) error { return nil }

func testContext(method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	ctx.Request = req
	return ctx, recorder
}

func TestCollapseNAT64(t *testing.T) {
	const prefix = "64:ff9b::/96"
	assert.Equal(t, "192.0.2.1", collapseNAT64("64:ff9b::c000:201", prefix))
	assert.Equal(t, "203.0.113.5", collapseNAT64("203.0.113.5", prefix))
	assert.Equal(t, "2001:db8::1", collapseNAT64("2001:db8::1", prefix))
	assert.Equal(t, "203.0.113.5", collapseNAT64("203.0.113.5", ""))
}

func TestCheckCSRF(t *testing.T) {
	ctx, _ := testContext(http.MethodPost, "/", nil)
	ctx.Request.AddCookie(&http.Cookie{Name: "esign_csrf", Value: "token-1"})

	assert.NoError(t, checkCSRF(ctx, "token-1"))
	assert.Error(t, checkCSRF(ctx, "token-2"))
	assert.Error(t, checkCSRF(ctx, ""))

	ctxNoCookie, _ := testContext(http.MethodPost, "/", nil)
	assert.Error(t, checkCSRF(ctxNoCookie, "token-1"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(esignerr.Errorf(esignerr.InvalidInput, "op", "x")))
	assert.Equal(t, http.StatusForbidden, statusFor(esignerr.Errorf(esignerr.AuthFailure, "op", "x")))
	assert.Equal(t, http.StatusForbidden, statusFor(esignerr.Errorf(esignerr.Expired, "op", "x")))
	assert.Equal(t, http.StatusNotFound, statusFor(esignerr.Errorf(esignerr.NotFound, "op", "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(esignerr.Errorf(esignerr.StorageError, "op", "x")))
}

func newTestDeps() (*Deps, *fakeStore, *fakeFiles, *fakeEnqueuer) {
	store := newFakeStore()
	files := newFakeFiles()
	enq := &fakeEnqueuer{}
	deps := &Deps{
		Store:    store,
		Files:    files,
		Renderer: fakeRenderer{},
		Tasks:    enq,
		Auth:     &Authenticator{},
	}
	return deps, store, files, enq
}

func TestCreateEnvelopeRecipientCountMismatch(t *testing.T) {
	deps, store, files, _ := newTestDeps()
	tmplID := typeid.New[typeid.TemplatePrefix]()
	store.templates[tmplID] = &model.Template{
		ID:       tmplID,
		BaseFile: "base.pdf",
		Fields: []model.TemplateField{
			{ID: "sig1", SigningOrder: 1, FieldType: model.FieldSignature, Required: true},
			{ID: "sig2", SigningOrder: 2, FieldType: model.FieldSignature, Required: true},
		},
	}
	files.files["base.pdf"] = []byte("%PDF-base")

	body, _ := json.Marshal(createEnvelopeRequest{CSRFToken: "tok", Recipients: []string{"only-one@example.com"}})
	ctx, recorder := testContext(http.MethodPost, "/template/"+tmplID.String()+"/create", body)
	ctx.Request.AddCookie(&http.Cookie{Name: "esign_csrf", Value: "tok"})
	ctx.Params = gin.Params{{Key: "tid", Value: tmplID.String()}}

	deps.createEnvelope(ctx)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, 0, store.createCalls)
}

func TestCreateEnvelopeSuccess(t *testing.T) {
	deps, store, files, enq := newTestDeps()
	tmplID := typeid.New[typeid.TemplatePrefix]()
	store.templates[tmplID] = &model.Template{
		ID:       tmplID,
		BaseFile: "base.pdf",
		Fields: []model.TemplateField{
			{ID: "sig1", SigningOrder: 1, FieldType: model.FieldSignature, Required: true},
			{ID: "sig2", SigningOrder: 2, FieldType: model.FieldSignature, Required: true},
		},
	}
	files.files["base.pdf"] = []byte("%PDF-base")

	body, _ := json.Marshal(createEnvelopeRequest{
		CSRFToken:  "tok",
		Recipients: []string{"r1@example.com", "r2@example.com"},
	})
	ctx, recorder := testContext(http.MethodPost, "/template/"+tmplID.String()+"/create", body)
	ctx.Request.AddCookie(&http.Cookie{Name: "esign_csrf", Value: "tok"})
	ctx.Params = gin.Params{{Key: "tid", Value: tmplID.String()}}

	deps.createEnvelope(ctx)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, 1, store.createCalls)
	require.Len(t, store.lastRecipients, 3) // sender + 2 recipients
	assert.True(t, store.lastRecipients[0].IsSender())
	assert.True(t, store.lastRecipients[0].Completed)
	assert.False(t, store.lastRecipients[1].Completed)
	require.Len(t, enq.progressed, 1)
}

func TestSubmitSignatureSuccess(t *testing.T) {
	deps, store, _, enq := newTestDeps()
	envID := typeid.New[typeid.EnvelopePrefix]()
	recID := typeid.New[typeid.RecipientPrefix]()
	tmplID := typeid.New[typeid.TemplatePrefix]()

	store.templates[tmplID] = &model.Template{
		ID: tmplID,
		Fields: []model.TemplateField{
			{ID: "sig1", SigningOrder: 1, FieldType: model.FieldSignature, Required: true},
		},
	}
	store.envelopes[envID] = &model.Envelope{ID: envID, TemplateID: tmplID}
	store.recipientsByEnvelope[envID] = []model.EnvelopeRecipient{
		{ID: recID, EnvelopeID: envID, RecipientOrder: 1, Key: "secret-key", Completed: false},
	}

	png := "aGVsbG8=" // base64("hello")
	body, _ := json.Marshal(submitSignatureRequest{
		CSRFToken: "tok",
		Key:       "secret-key",
		Fields:    map[string]string{"sig1": png},
	})
	target := "/envelope/" + envID.String() + "/sign/" + recID.String() + "/create"
	ctx, recorder := testContext(http.MethodPost, target, body)
	ctx.Request.AddCookie(&http.Cookie{Name: "esign_csrf", Value: "tok"})
	ctx.Params = gin.Params{{Key: "eid", Value: envID.String()}, {Key: "rid", Value: recID.String()}}

	deps.submitSignature(ctx)

	require.Equal(t, http.StatusAccepted, recorder.Code)
	require.Len(t, enq.signed, 1)
	assert.Equal(t, envID, enq.signed[0].EnvelopeID)
	assert.Equal(t, recID, enq.signed[0].RecipientID)
	require.Len(t, enq.signed[0].Fields, 1)
	assert.Equal(t, "hello", string(enq.signed[0].Fields[0].PNG))
}

func TestSubmitSignatureKeyMismatch(t *testing.T) {
	deps, store, _, enq := newTestDeps()
	envID := typeid.New[typeid.EnvelopePrefix]()
	recID := typeid.New[typeid.RecipientPrefix]()
	tmplID := typeid.New[typeid.TemplatePrefix]()

	store.templates[tmplID] = &model.Template{ID: tmplID}
	store.envelopes[envID] = &model.Envelope{ID: envID, TemplateID: tmplID}
	store.recipientsByEnvelope[envID] = []model.EnvelopeRecipient{
		{ID: recID, EnvelopeID: envID, RecipientOrder: 1, Key: "secret-key", Completed: false},
	}

	body, _ := json.Marshal(submitSignatureRequest{CSRFToken: "tok", Key: "wrong-key", Fields: map[string]string{}})
	target := "/envelope/" + envID.String() + "/sign/" + recID.String() + "/create"
	ctx, recorder := testContext(http.MethodPost, target, body)
	ctx.Request.AddCookie(&http.Cookie{Name: "esign_csrf", Value: "tok"})
	ctx.Params = gin.Params{{Key: "eid", Value: envID.String()}, {Key: "rid", Value: recID.String()}}

	deps.submitSignature(ctx)

	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Empty(t, enq.signed)
}

func TestOpenSigningLinkWritesOpenedEntry(t *testing.T) {
	deps, store, _, _ := newTestDeps()
	envID := typeid.New[typeid.EnvelopePrefix]()
	recID := typeid.New[typeid.RecipientPrefix]()
	store.envelopes[envID] = &model.Envelope{ID: envID, CurrentFile: "file-1.pdf"}
	store.recipientsByEnvelope[envID] = []model.EnvelopeRecipient{
		{ID: recID, EnvelopeID: envID, RecipientOrder: 1, Key: "secret-key"},
	}

	target := "/envelope/" + envID.String() + "/sign/" + recID.String() + "?key=secret-key"
	ctx, recorder := testContext(http.MethodGet, target, nil)
	ctx.Params = gin.Params{{Key: "eid", Value: envID.String()}, {Key: "rid", Value: recID.String()}}
	ctx.Request.URL.RawQuery = "key=secret-key"

	deps.openSigningLink(ctx)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, store.logEntries, 1)
	assert.Equal(t, model.EntryOpened, store.logEntries[0].EntryType)
}

func TestServeFileHMACGate(t *testing.T) {
	dir := t.TempDir()
	local, err := filestore.NewLocalStore(dir)
	require.NoError(t, err)

	path, err := local.Put(context.Background(), []byte("%PDF-1.4 contents"))
	require.NoError(t, err)

	signer := filestore.NewSigner([]byte("a-very-secret-files-key"))
	now := time.Now()
	key := signer.Sign(path, now)

	deps := &Deps{Files: local, FilesSigner: signer, Store: newFakeStore()}

	ctx, recorder := testContext(http.MethodGet, "/files/"+path+"?key="+key, nil)
	ctx.Params = gin.Params{{Key: "path", Value: "/" + path}}
	ctx.Request.URL.RawQuery = "key=" + key

	deps.serveFile(ctx)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "%PDF-1.4 contents", recorder.Body.String())

	ctxBad, recorderBad := testContext(http.MethodGet, "/files/"+path+"?key=garbage", nil)
	ctxBad.Params = gin.Params{{Key: "path", Value: "/" + path}}
	ctxBad.Request.URL.RawQuery = "key=garbage"
	deps.serveFile(ctxBad)
	assert.Equal(t, http.StatusForbidden, recorderBad.Code)
}
