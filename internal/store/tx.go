package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

// ApplyBatches opens a single transaction and applies each batch in
// order (upsert session, then event row if present, then error rows),
// then commits. On any error the transaction is rolled back and the
// caller (the Batcher) is expected to re-queue the batches it passed
// in. This is the only Store entry point the Batcher uses for flushing.
func (d *DB) ApplyBatches(batches []types.Batch) error {
	if len(batches) == 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, b := range batches {
		if b.UpsertMetadata {
			if err := upsertSessionTx(tx, b); err != nil {
				return err
			}
		}
		if len(b.Events) > 0 {
			if err := appendEventsRowTx(tx, b.SessionID, b.Events); err != nil {
				return err
			}
		}
		if len(b.Errors) > 0 {
			if err := appendErrorsTx(tx, b.SessionID, b.Errors); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch transaction: %w", err)
	}
	committed = true
	return nil
}

func upsertSessionTx(tx *sql.Tx, b types.Batch) error {
	metaJSON, err := json.Marshal(b.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for session %s: %w", b.SessionID, err)
	}
	_, err = tx.Exec(`
		INSERT INTO sessions (session_id, user_id, metadata, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (session_id) DO UPDATE
		SET metadata = $3, is_active = $4, updated_at = now()`,
		b.SessionID, b.UserID, metaJSON, b.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", b.SessionID, err)
	}
	return nil
}

func appendEventsRowTx(tx *sql.Tx, sessionID string, events []types.Event) error {
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal events for session %s: %w", sessionID, err)
	}
	_, err = tx.Exec(`
		INSERT INTO session_events (session_id, events, event_count, created_at)
		VALUES ($1, $2, $3, now())`,
		sessionID, eventsJSON, len(events),
	)
	if err != nil {
		return fmt.Errorf("append events row for session %s: %w", sessionID, err)
	}
	return nil
}

func appendErrorsTx(tx *sql.Tx, sessionID string, errs []types.ErrorRecord) error {
	for _, e := range errs {
		errJSON, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal error for session %s: %w", sessionID, err)
		}
		_, err = tx.Exec(`
			INSERT INTO session_errors (session_id, error_data, created_at)
			VALUES ($1, $2, now())`,
			sessionID, errJSON,
		)
		if err != nil {
			return fmt.Errorf("append error for session %s: %w", sessionID, err)
		}
	}
	return nil
}
