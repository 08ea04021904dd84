package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/tasks"
	"github.com/esignhq/esign/internal/typeid"
)

type createEnvelopeRequest struct {
	CSRFToken  string            `json:"csrf_token"`
	Recipients []string          `json:"recipients"`
	Fields     map[string]string `json:"fields"`
}

// createEnvelope implements POST /template/:tid/create (spec.md §6): builds
// the envelope's recipient slots, renders the sender's own fields (signing
// order 0) onto the template's base file, and enqueues progress_envelope —
// matching §4.F's state diagram, where creation lands directly on
// "Signed(0)".
func (d *Deps) createEnvelope(c *gin.Context) {
	tid, err := typeid.Parse[typeid.TemplatePrefix](c.Param("tid"))
	if err != nil {
		abort(c, esignerr.New(esignerr.InvalidInput, "httpapi.createEnvelope", err))
		return
	}

	var req createEnvelopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, esignerr.New(esignerr.InvalidInput, "httpapi.createEnvelope", err))
		return
	}
	if err := checkCSRF(c, req.CSRFToken); err != nil {
		abort(c, err)
		return
	}

	ctx := c.Request.Context()
	tmpl, err := d.Store.GetTemplate(ctx, tid)
	if err != nil {
		abort(c, err)
		return
	}
	if len(req.Recipients) != tmpl.RecipientCount() {
		abort(c, esignerr.Errorf(esignerr.InvalidInput, "httpapi.createEnvelope", "expected %d recipients, got %d", tmpl.RecipientCount(), len(req.Recipients)))
		return
	}

	senderFields := tmpl.FieldsForOrder(0)
	values, _, err := decodeFields(req.Fields, senderFields)
	if err != nil {
		abort(c, err)
		return
	}

	baseBytes, err := d.Files.Get(ctx, tmpl.BaseFile)
	if err != nil {
		abort(c, err)
		return
	}

	currentFile := tmpl.BaseFile
	currentBytes := baseBytes
	if len(values) > 0 {
		result, err := d.Renderer.Apply(baseBytes, values, d.SigInfo, time.Now())
		if err != nil {
			abort(c, err)
			return
		}
		currentBytes = result.Bytes
		path, err := d.Files.Put(ctx, currentBytes)
		if err != nil {
			abort(c, err)
			return
		}
		currentFile = path
	}

	env := &model.Envelope{
		ID:          typeid.New[typeid.EnvelopePrefix](),
		TemplateID:  tmpl.ID,
		BaseFile:    tmpl.BaseFile,
		CurrentFile: currentFile,
	}

	recipients := []model.EnvelopeRecipient{{
		ID:             typeid.New[typeid.RecipientPrefix](),
		EnvelopeID:     env.ID,
		Email:          "",
		RecipientOrder: 0,
		Completed:      true,
	}}
	for i, email := range req.Recipients {
		key, err := generateRecipientKey()
		if err != nil {
			abort(c, esignerr.New(esignerr.StorageError, "httpapi.createEnvelope", err))
			return
		}
		recipients = append(recipients, model.EnvelopeRecipient{
			ID:             typeid.New[typeid.RecipientPrefix](),
			EnvelopeID:     env.ID,
			Email:          email,
			RecipientOrder: i + 1,
			Key:            key,
			Completed:      false,
		})
	}

	if err := d.Store.CreateEnvelope(ctx, env, recipients, hashHex(currentBytes)); err != nil {
		abort(c, err)
		return
	}

	if err := d.Tasks.EnqueueProgressEnvelope(ctx, tasks.ProgressEnvelopeArgs{EnvelopeID: env.ID}); err != nil {
		abort(c, esignerr.New(esignerr.StorageError, "httpapi.createEnvelope", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"envelope_id": env.ID})
}

// listEnvelopes implements GET /envelope.
func (d *Deps) listEnvelopes(c *gin.Context) {
	envs, err := d.Store.ListEnvelopes(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"envelopes": envs})
}

// getEnvelope implements GET /envelope/:eid.
func (d *Deps) getEnvelope(c *gin.Context) {
	eid, err := typeid.Parse[typeid.EnvelopePrefix](c.Param("eid"))
	if err != nil {
		abort(c, esignerr.New(esignerr.InvalidInput, "httpapi.getEnvelope", err))
		return
	}
	ctx := c.Request.Context()
	env, err := d.Store.GetEnvelope(ctx, eid)
	if err != nil {
		abort(c, err)
		return
	}
	recipients, err := d.Store.ListRecipients(ctx, eid)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"envelope": env, "recipients": recipients})
}

// openSigningLink implements GET /envelope/:eid/sign/:rid?key=… (spec.md
// §6): constant-time key compare, then an Opened log entry.
func (d *Deps) openSigningLink(c *gin.Context) {
	env, recipient, err := d.loadSigningRecipient(c)
	if err != nil {
		abort(c, err)
		return
	}

	entry := &model.EnvelopeLog{
		ID:          typeid.New[typeid.LogPrefix](),
		EnvelopeID:  env.ID,
		RecipientID: &recipient.ID,
		EntryType:   model.EntryOpened,
		IPAddress:   collapseNAT64(c.ClientIP(), d.NAT64Net),
		UserAgent:   c.Request.UserAgent(),
		CurrentFile: env.CurrentFile,
	}
	if err := d.Store.AppendLog(c.Request.Context(), entry); err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"envelope": env, "recipient": recipient})
}

type submitSignatureRequest struct {
	CSRFToken string            `json:"csrf_token"`
	Key       string            `json:"key"`
	Fields    map[string]string `json:"fields"`
}

// submitSignature implements POST /envelope/:eid/sign/:rid/create (spec.md
// §6): validates the request, then hands the actual state transition to the
// sign_envelope task so it happens inside that task's single DB transaction
// (spec.md §4.F idempotence requirement (a)).
func (d *Deps) submitSignature(c *gin.Context) {
	eid, err := typeid.Parse[typeid.EnvelopePrefix](c.Param("eid"))
	if err != nil {
		abort(c, esignerr.New(esignerr.InvalidInput, "httpapi.submitSignature", err))
		return
	}
	rid, err := typeid.Parse[typeid.RecipientPrefix](c.Param("rid"))
	if err != nil {
		abort(c, esignerr.New(esignerr.InvalidInput, "httpapi.submitSignature", err))
		return
	}

	var req submitSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, esignerr.New(esignerr.InvalidInput, "httpapi.submitSignature", err))
		return
	}
	if err := checkCSRF(c, req.CSRFToken); err != nil {
		abort(c, err)
		return
	}

	ctx := c.Request.Context()
	recipient, err := d.Store.GetRecipient(ctx, eid, rid)
	if err != nil {
		abort(c, err)
		return
	}
	if subtle.ConstantTimeCompare([]byte(recipient.Key), []byte(req.Key)) != 1 {
		abort(c, esignerr.Errorf(esignerr.AuthFailure, "httpapi.submitSignature", "key mismatch"))
		return
	}
	if recipient.Completed {
		abort(c, esignerr.Errorf(esignerr.InvalidInput, "httpapi.submitSignature", "recipient already signed"))
		return
	}

	tmpl, err := d.tmplForEnvelope(ctx, eid)
	if err != nil {
		abort(c, err)
		return
	}
	_, submissions, err := decodeFields(req.Fields, tmpl.FieldsForOrder(recipient.RecipientOrder))
	if err != nil {
		abort(c, err)
		return
	}

	args := tasks.SignEnvelopeArgs{
		EnvelopeID:  eid,
		RecipientID: rid,
		Fields:      submissions,
		Meta: tasks.ClientMeta{
			IPAddress: collapseNAT64(c.ClientIP(), d.NAT64Net),
			UserAgent: c.Request.UserAgent(),
		},
	}
	if err := d.Tasks.EnqueueSignEnvelope(ctx, args); err != nil {
		abort(c, esignerr.New(esignerr.StorageError, "httpapi.submitSignature", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// loadSigningRecipient resolves and key-validates the :eid/:rid/?key= triple
// shared by the recipient-facing signing endpoints.
func (d *Deps) loadSigningRecipient(c *gin.Context) (*model.Envelope, *model.EnvelopeRecipient, error) {
	eid, err := typeid.Parse[typeid.EnvelopePrefix](c.Param("eid"))
	if err != nil {
		return nil, nil, esignerr.New(esignerr.InvalidInput, "httpapi.loadSigningRecipient", err)
	}
	rid, err := typeid.Parse[typeid.RecipientPrefix](c.Param("rid"))
	if err != nil {
		return nil, nil, esignerr.New(esignerr.InvalidInput, "httpapi.loadSigningRecipient", err)
	}

	ctx := c.Request.Context()
	recipient, err := d.Store.GetRecipient(ctx, eid, rid)
	if err != nil {
		return nil, nil, err
	}
	if subtle.ConstantTimeCompare([]byte(recipient.Key), []byte(c.Query("key"))) != 1 {
		return nil, nil, esignerr.Errorf(esignerr.AuthFailure, "httpapi.loadSigningRecipient", "key mismatch")
	}
	env, err := d.Store.GetEnvelope(ctx, eid)
	if err != nil {
		return nil, nil, err
	}
	return env, recipient, nil
}

func (d *Deps) tmplForEnvelope(c context.Context, eid typeid.Envelope) (*model.Template, error) {
	env, err := d.Store.GetEnvelope(c, eid)
	if err != nil {
		return nil, err
	}
	return d.Store.GetTemplate(c, env.TemplateID)
}

func generateRecipientKey() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

func hashHex(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}
