package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ScanRecord is a persisted scan session. State is the encoded wizard state.
type ScanRecord struct {
	ID        string
	UserID    int64
	Step      string
	State     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SaveScan inserts or replaces a scan session.
func SaveScan(ctx context.Context, db *sql.DB, rec *ScanRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO scan_sessions (id, user_id, step, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     step = excluded.step,
		     state = excluded.state,
		     updated_at = excluded.updated_at`,
		rec.ID, rec.UserID, rec.Step, string(rec.State), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving scan: %w", err)
	}
	return nil
}

// GetScan returns a scan session by ID.
func GetScan(ctx context.Context, db *sql.DB, id string) (*ScanRecord, error) {
	rec := &ScanRecord{}
	var state string
	err := db.QueryRowContext(ctx,
		`SELECT id, user_id, step, state, created_at, updated_at
		 FROM scan_sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.UserID, &rec.Step, &state, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting scan: %w", err)
	}
	rec.State = []byte(state)
	return rec, nil
}

// ListScans returns the scan sessions of a user, most recent first.
func ListScans(ctx context.Context, db *sql.DB, userID int64) ([]ScanRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, step, state, created_at, updated_at
		 FROM scan_sessions WHERE user_id = ? ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	var recs []ScanRecord
	for rows.Next() {
		var rec ScanRecord
		var state string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Step, &state, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning scan: %w", err)
		}
		rec.State = []byte(state)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteScan removes a scan session.
func DeleteScan(ctx context.Context, db *sql.DB, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM scan_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting scan: %w", err)
	}
	return nil
}

// DeleteScansBefore removes scan sessions last updated before cutoff and
// returns the removed records.
func DeleteScansBefore(ctx context.Context, db *sql.DB, cutoff time.Time) ([]ScanRecord, error) {
	rows, err := db.QueryContext(ctx,
		`DELETE FROM scan_sessions WHERE updated_at < ?
		 RETURNING id, user_id, step, state, created_at, updated_at`, cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("expiring scans: %w", err)
	}
	defer rows.Close()

	var recs []ScanRecord
	for rows.Next() {
		var rec ScanRecord
		var state string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Step, &state, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning expired scan: %w", err)
		}
		rec.State = []byte(state)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
