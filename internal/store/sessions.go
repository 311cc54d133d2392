package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

// GetActiveSessions returns only is_active=true sessions, joined with
// their event/error counts, sorted by updated_at descending.
func (d *DB) GetActiveSessions() ([]types.ActiveSessionSummary, error) {
	return d.querySessionSummaries(`WHERE s.is_active = true`)
}

// GetAllSessions returns the full session index, same shape as
// GetActiveSessions without the active filter, paginated.
func (d *DB) GetAllSessions(limit, offset int) ([]types.ActiveSessionSummary, error) {
	rows, err := d.conn.Query(`
		SELECT s.session_id, s.user_id, s.metadata, s.is_active,
		       COALESCE(ev.event_total, 0), COALESCE(er.error_total, 0),
		       s.updated_at
		FROM sessions s
		LEFT JOIN (
			SELECT session_id, SUM(event_count) AS event_total
			FROM session_events GROUP BY session_id
		) ev ON ev.session_id = s.session_id
		LEFT JOIN (
			SELECT session_id, COUNT(*) AS error_total
			FROM session_errors GROUP BY session_id
		) er ON er.session_id = s.session_id
		ORDER BY s.updated_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get all sessions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return scanSessionSummaries(rows)
}

func (d *DB) querySessionSummaries(whereClause string) ([]types.ActiveSessionSummary, error) {
	rows, err := d.conn.Query(`
		SELECT s.session_id, s.user_id, s.metadata, s.is_active,
		       COALESCE(ev.event_total, 0), COALESCE(er.error_total, 0),
		       s.updated_at
		FROM sessions s
		LEFT JOIN (
			SELECT session_id, SUM(event_count) AS event_total
			FROM session_events GROUP BY session_id
		) ev ON ev.session_id = s.session_id
		LEFT JOIN (
			SELECT session_id, COUNT(*) AS error_total
			FROM session_errors GROUP BY session_id
		) er ON er.session_id = s.session_id
		` + whereClause + `
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query session summaries: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return scanSessionSummaries(rows)
}

func scanSessionSummaries(rows *sql.Rows) ([]types.ActiveSessionSummary, error) {
	var out []types.ActiveSessionSummary
	for rows.Next() {
		var s types.ActiveSessionSummary
		var metaJSON []byte
		var updatedAt time.Time
		if err := rows.Scan(&s.SessionID, &s.UserID, &metaJSON, &s.IsActive, &s.EventCount, &s.ErrorCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &s.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for session %s: %w", s.SessionID, err)
			}
		}
		s.UpdatedAt = updatedAt.UnixMilli()
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetStats returns totals of sessions, active sessions, and summed event
// counts.
func (d *DB) GetStats() (types.Stats, error) {
	var stats types.Stats
	err := d.conn.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM sessions WHERE is_active = true),
			(SELECT COALESCE(SUM(event_count), 0) FROM session_events)`,
	).Scan(&stats.TotalSessions, &stats.ActiveSessions, &stats.TotalEvents)
	if err != nil {
		return types.Stats{}, fmt.Errorf("get stats: %w", err)
	}
	return stats, nil
}

// CleanupOldSessions deletes sessions where is_active=false and
// updated_at is older than maxAgeHours. Cascading foreign keys remove
// their events and errors. Returns the number of deleted rows.
func (d *DB) CleanupOldSessions(maxAgeHours int) (int, error) {
	res, err := d.conn.Exec(`
		DELETE FROM sessions
		WHERE is_active = false
		  AND updated_at < now() - ($1 || ' hours')::interval`,
		maxAgeHours,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup old sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup old sessions rows affected: %w", err)
	}
	return int(n), nil
}
