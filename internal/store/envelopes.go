package store

import (
	"context"
	"fmt"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/typeid"
)

// CreateEnvelope inserts env and its recipients, and writes the envelope's
// single Created log entry, all in one transaction (spec.md §3's "every
// envelope has exactly one Created entry, which is the earliest").
func (s *Store) CreateEnvelope(ctx context.Context, env *model.Envelope, recipients []model.EnvelopeRecipient, currentFileHash string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return esignerr.New(esignerr.StorageError, "store.CreateEnvelope", fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO envelopes (id, template_id, base_file, current_file)
		VALUES ($1, $2, $3, $4)`,
		env.ID, env.TemplateID, env.BaseFile, env.CurrentFile)
	if err != nil {
		return esignerr.New(esignerr.StorageError, "store.CreateEnvelope", fmt.Errorf("insert envelope: %w", err))
	}

	for _, r := range recipients {
		_, err = tx.Exec(ctx, `
			INSERT INTO envelope_recipients (id, envelope_id, email, recipient_order, key, completed)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ID, env.ID, r.Email, r.RecipientOrder, r.Key, r.Completed)
		if err != nil {
			return esignerr.New(esignerr.StorageError, "store.CreateEnvelope", fmt.Errorf("insert recipient %s: %w", r.ID, err))
		}
	}

	logID := typeid.New[typeid.LogPrefix]()
	_, err = tx.Exec(ctx, `
		INSERT INTO envelope_log (id, envelope_id, entry_type, current_file, current_document_hash)
		VALUES ($1, $2, $3, $4, $5)`,
		logID, env.ID, model.EntryCreated, env.CurrentFile, currentFileHash)
	if err != nil {
		return esignerr.New(esignerr.StorageError, "store.CreateEnvelope", fmt.Errorf("insert Created log: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return esignerr.New(esignerr.StorageError, "store.CreateEnvelope", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// GetEnvelope loads an envelope by id.
func (s *Store) GetEnvelope(ctx context.Context, id typeid.Envelope) (*model.Envelope, error) {
	var env model.Envelope
	err := s.pool.QueryRow(ctx, `
		SELECT id, template_id, base_file, current_file, created_at FROM envelopes WHERE id = $1`, id,
	).Scan(&env.ID, &env.TemplateID, &env.BaseFile, &env.CurrentFile, &env.CreatedAt)
	if err != nil {
		return nil, esignerr.New(esignerr.NotFound, "store.GetEnvelope", fmt.Errorf("envelope %s: %w", id, err))
	}
	return &env, nil
}

// ListEnvelopes returns every envelope, most recent first.
func (s *Store) ListEnvelopes(ctx context.Context) ([]model.Envelope, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, template_id, base_file, current_file, created_at FROM envelopes ORDER BY created_at DESC`)
	if err != nil {
		return nil, esignerr.New(esignerr.StorageError, "store.ListEnvelopes", err)
	}
	defer rows.Close()

	var out []model.Envelope
	for rows.Next() {
		var e model.Envelope
		if err := rows.Scan(&e.ID, &e.TemplateID, &e.BaseFile, &e.CurrentFile, &e.CreatedAt); err != nil {
			return nil, esignerr.New(esignerr.StorageError, "store.ListEnvelopes", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRecipients returns env's recipients ordered by recipient_order.
func (s *Store) ListRecipients(ctx context.Context, envelopeID typeid.Envelope) ([]model.EnvelopeRecipient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, envelope_id, email, recipient_order, key, completed
		FROM envelope_recipients WHERE envelope_id = $1 ORDER BY recipient_order`, envelopeID)
	if err != nil {
		return nil, esignerr.New(esignerr.StorageError, "store.ListRecipients", err)
	}
	defer rows.Close()

	var out []model.EnvelopeRecipient
	for rows.Next() {
		var r model.EnvelopeRecipient
		if err := rows.Scan(&r.ID, &r.EnvelopeID, &r.Email, &r.RecipientOrder, &r.Key, &r.Completed); err != nil {
			return nil, esignerr.New(esignerr.StorageError, "store.ListRecipients", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRecipient loads one recipient within envelopeID.
func (s *Store) GetRecipient(ctx context.Context, envelopeID typeid.Envelope, recipientID typeid.Recipient) (*model.EnvelopeRecipient, error) {
	var r model.EnvelopeRecipient
	err := s.pool.QueryRow(ctx, `
		SELECT id, envelope_id, email, recipient_order, key, completed
		FROM envelope_recipients WHERE envelope_id = $1 AND id = $2`, envelopeID, recipientID,
	).Scan(&r.ID, &r.EnvelopeID, &r.Email, &r.RecipientOrder, &r.Key, &r.Completed)
	if err != nil {
		return nil, esignerr.New(esignerr.NotFound, "store.GetRecipient", fmt.Errorf("recipient %s: %w", recipientID, err))
	}
	return &r, nil
}

// NextIncompleteRecipient returns the lowest recipient_order recipient of
// envelopeID with completed=false, or nil if every recipient is done
// (spec.md §4.F's progress_envelope: "selects the lowest recipient_order
// recipient with completed=false").
func (s *Store) NextIncompleteRecipient(ctx context.Context, envelopeID typeid.Envelope) (*model.EnvelopeRecipient, error) {
	var r model.EnvelopeRecipient
	err := s.pool.QueryRow(ctx, `
		SELECT id, envelope_id, email, recipient_order, key, completed
		FROM envelope_recipients
		WHERE envelope_id = $1 AND completed = false
		ORDER BY recipient_order ASC LIMIT 1`, envelopeID,
	).Scan(&r.ID, &r.EnvelopeID, &r.Email, &r.RecipientOrder, &r.Key, &r.Completed)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, esignerr.New(esignerr.StorageError, "store.NextIncompleteRecipient", err)
	}
	return &r, nil
}
