//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/typeid"
)

func TestTemplateRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tmpl := &model.Template{
		ID:       typeid.New[typeid.TemplatePrefix](),
		BaseFile: "base.pdf",
		Fields: []model.TemplateField{
			{ID: "f1", SigningOrder: 1, FieldType: model.FieldSignature, Required: true, Page: 1,
				Rect: model.Rect{Top: 0.1, Left: 0.1, Width: 0.2, Height: 0.05}},
		},
	}
	if err := s.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	got, err := s.GetTemplate(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if got.BaseFile != tmpl.BaseFile || len(got.Fields) != 1 {
		t.Fatalf("got %+v, want %+v", got, tmpl)
	}
	if got.RecipientCount() != 1 {
		t.Fatalf("RecipientCount = %d, want 1", got.RecipientCount())
	}
}

func TestEnvelopeSigningProgression(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tmpl := &model.Template{ID: typeid.New[typeid.TemplatePrefix](), BaseFile: "base.pdf"}
	if err := s.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	env := &model.Envelope{
		ID: typeid.New[typeid.EnvelopePrefix](), TemplateID: tmpl.ID,
		BaseFile: "rev0.pdf", CurrentFile: "rev0.pdf",
	}
	sender := model.EnvelopeRecipient{ID: typeid.New[typeid.RecipientPrefix](), RecipientOrder: 0, Email: "sender@example.com", Key: "sk", Completed: true}
	r1 := model.EnvelopeRecipient{ID: typeid.New[typeid.RecipientPrefix](), RecipientOrder: 1, Email: "r1@example.com", Key: "k1"}
	r2 := model.EnvelopeRecipient{ID: typeid.New[typeid.RecipientPrefix](), RecipientOrder: 2, Email: "r2@example.com", Key: "k2"}

	if err := s.CreateEnvelope(ctx, env, []model.EnvelopeRecipient{sender, r1, r2}, "deadbeef"); err != nil {
		t.Fatalf("CreateEnvelope: %v", err)
	}

	next, err := s.NextIncompleteRecipient(ctx, env.ID)
	if err != nil {
		t.Fatalf("NextIncompleteRecipient: %v", err)
	}
	if next == nil || next.ID != r1.ID {
		t.Fatalf("next = %+v, want r1", next)
	}

	if err := s.SignEnvelope(ctx, env.ID, r1.ID, "rev1.pdf", &model.EnvelopeLog{CurrentDocumentHash: "hash1"}); err != nil {
		t.Fatalf("SignEnvelope r1: %v", err)
	}
	if err := s.SignEnvelope(ctx, env.ID, r1.ID, "rev1.pdf", &model.EnvelopeLog{CurrentDocumentHash: "hash1"}); err == nil {
		t.Fatal("expected error re-signing an already-completed recipient")
	}

	got, err := s.GetEnvelope(ctx, env.ID)
	if err != nil {
		t.Fatalf("GetEnvelope: %v", err)
	}
	if got.CurrentFile != "rev1.pdf" {
		t.Fatalf("CurrentFile = %q, want rev1.pdf", got.CurrentFile)
	}

	next, err = s.NextIncompleteRecipient(ctx, env.ID)
	if err != nil {
		t.Fatalf("NextIncompleteRecipient: %v", err)
	}
	if next == nil || next.ID != r2.ID {
		t.Fatalf("next = %+v, want r2", next)
	}

	if err := s.SignEnvelope(ctx, env.ID, r2.ID, "rev2.pdf", &model.EnvelopeLog{CurrentDocumentHash: "hash2"}); err != nil {
		t.Fatalf("SignEnvelope r2: %v", err)
	}
	next, err = s.NextIncompleteRecipient(ctx, env.ID)
	if err != nil {
		t.Fatalf("NextIncompleteRecipient: %v", err)
	}
	if next != nil {
		t.Fatalf("next = %+v, want nil (all signed)", next)
	}

	log, err := s.ListLog(ctx, env.ID)
	if err != nil {
		t.Fatalf("ListLog: %v", err)
	}
	if len(log) != 3 {
		t.Fatalf("len(log) = %d, want 3 (Created, Signed x2)", len(log))
	}
	if log[0].EntryType != model.EntryCreated {
		t.Fatalf("log[0].EntryType = %v, want Created", log[0].EntryType)
	}
}
