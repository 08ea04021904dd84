package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/typeid"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// AppendLog writes one audit entry. The table has no update or delete path;
// this is the only write entry point (spec.md §3: "entries are never
// mutated or deleted").
func (s *Store) AppendLog(ctx context.Context, entry *model.EnvelopeLog) error {
	return appendLog(ctx, s.pool, entry)
}

// queryExecer is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// appendLog run either standalone or as part of a caller's transaction.
type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func appendLog(ctx context.Context, q queryExecer, entry *model.EnvelopeLog) error {
	if entry.ID.IsNil() {
		entry.ID = typeid.New[typeid.LogPrefix]()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO envelope_log
			(id, envelope_id, recipient_id, entry_type, ip_address, user_agent, current_file, current_document_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.EnvelopeID, entry.RecipientID, entry.EntryType,
		entry.IPAddress, entry.UserAgent, entry.CurrentFile, entry.CurrentDocumentHash)
	if err != nil {
		return esignerr.New(esignerr.StorageError, "store.AppendLog", fmt.Errorf("insert %s: %w", entry.EntryType, err))
	}
	return nil
}

// ListLog returns envelopeID's full audit trail, oldest first.
func (s *Store) ListLog(ctx context.Context, envelopeID typeid.Envelope) ([]model.EnvelopeLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, envelope_id, ts, recipient_id, entry_type, ip_address, user_agent, current_file, current_document_hash
		FROM envelope_log WHERE envelope_id = $1 ORDER BY ts ASC`, envelopeID)
	if err != nil {
		return nil, esignerr.New(esignerr.StorageError, "store.ListLog", err)
	}
	defer rows.Close()

	var out []model.EnvelopeLog
	for rows.Next() {
		var e model.EnvelopeLog
		if err := rows.Scan(&e.ID, &e.EnvelopeID, &e.Timestamp, &e.RecipientID, &e.EntryType,
			&e.IPAddress, &e.UserAgent, &e.CurrentFile, &e.CurrentDocumentHash); err != nil {
			return nil, esignerr.New(esignerr.StorageError, "store.ListLog", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SignEnvelope performs spec.md §4.F's sign_envelope task body: it marks
// recipientID completed, advances the envelope's current_file, and appends
// the Signed log entry, all inside one transaction. Running the task twice
// for the same recipient (at-least-once redelivery) is safe: the second
// attempt finds the recipient already completed and returns
// ErrAlreadySigned without writing a duplicate log entry or regressing
// current_file.
func (s *Store) SignEnvelope(ctx context.Context, envelopeID typeid.Envelope, recipientID typeid.Recipient, newCurrentFile string, entry *model.EnvelopeLog) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return esignerr.New(esignerr.StorageError, "store.SignEnvelope", fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx)

	var completed bool
	err = tx.QueryRow(ctx, `
		SELECT completed FROM envelope_recipients WHERE envelope_id = $1 AND id = $2 FOR UPDATE`,
		envelopeID, recipientID,
	).Scan(&completed)
	if err != nil {
		if isNoRows(err) {
			return esignerr.New(esignerr.NotFound, "store.SignEnvelope", fmt.Errorf("recipient %s", recipientID))
		}
		return esignerr.New(esignerr.StorageError, "store.SignEnvelope", fmt.Errorf("lock recipient: %w", err))
	}
	if completed {
		return esignerr.Errorf(esignerr.InvalidInput, "store.SignEnvelope", "recipient %s already signed", recipientID)
	}

	if _, err := tx.Exec(ctx, `UPDATE envelope_recipients SET completed = true WHERE id = $1`, recipientID); err != nil {
		return esignerr.New(esignerr.StorageError, "store.SignEnvelope", fmt.Errorf("mark completed: %w", err))
	}
	if _, err := tx.Exec(ctx, `UPDATE envelopes SET current_file = $1 WHERE id = $2`, newCurrentFile, envelopeID); err != nil {
		return esignerr.New(esignerr.StorageError, "store.SignEnvelope", fmt.Errorf("advance current_file: %w", err))
	}

	entry.EnvelopeID = envelopeID
	entry.RecipientID = &recipientID
	entry.EntryType = model.EntrySigned
	entry.CurrentFile = newCurrentFile
	if err := appendLog(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return esignerr.New(esignerr.StorageError, "store.SignEnvelope", fmt.Errorf("commit: %w", err))
	}
	return nil
}
