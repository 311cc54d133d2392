package store

import (
	"encoding/json"
	"fmt"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

// GetSessionEvents reads all batch rows for sessionId ordered by
// created_at ascending, concatenates their events arrays in that order,
// and returns the slice [fromIndex, fromIndex+limit) along with the
// total event count across all rows. The returned count may be zero
// when the session is unknown or the offset exceeds the stream; that is
// not an error. Consistency is eventual with respect to in-flight
// Batcher writes.
func (d *DB) GetSessionEvents(sessionID string, fromIndex, limit int) (events []types.Event, total int, err error) {
	rows, err := d.conn.Query(`
		SELECT events FROM session_events
		WHERE session_id = $1
		ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("get session events for %s: %w", sessionID, err)
	}
	defer rows.Close() //nolint:errcheck

	var all []types.Event
	for rows.Next() {
		var rowJSON []byte
		if err := rows.Scan(&rowJSON); err != nil {
			return nil, 0, fmt.Errorf("scan session events row for %s: %w", sessionID, err)
		}
		var batch []types.Event
		if err := json.Unmarshal(rowJSON, &batch); err != nil {
			return nil, 0, fmt.Errorf("unmarshal session events row for %s: %w", sessionID, err)
		}
		all = append(all, batch...)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate session events for %s: %w", sessionID, err)
	}

	total = len(all)
	return paginate(all, fromIndex, limit), total, nil
}

// paginate returns the slice [fromIndex, fromIndex+limit) of all,
// clamped to all's bounds. An out-of-range fromIndex yields an empty
// (non-nil is not required) slice rather than an error.
func paginate(all []types.Event, fromIndex, limit int) []types.Event {
	if fromIndex < 0 {
		fromIndex = 0
	}
	if fromIndex >= len(all) {
		return nil
	}
	end := fromIndex + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[fromIndex:end]
}
