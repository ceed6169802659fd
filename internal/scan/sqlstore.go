package scan

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erazemk/nomisma/internal/store"
)

// SQLStore keeps scan sessions in the console database as JSON.
type SQLStore struct {
	DB *sql.DB
}

// SaveScan implements Store.
func (st SQLStore) SaveScan(ctx context.Context, s *State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding scan: %w", err)
	}
	return store.SaveScan(ctx, st.DB, &store.ScanRecord{
		ID:        s.ID,
		UserID:    s.UserID,
		Step:      string(s.Step),
		State:     data,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	})
}

// GetScan implements Store.
func (st SQLStore) GetScan(ctx context.Context, id string) (*State, error) {
	rec, err := store.GetScan(ctx, st.DB, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return decodeRecord(rec)
}

// ListScans implements Store.
func (st SQLStore) ListScans(ctx context.Context, userID int64) ([]State, error) {
	recs, err := store.ListScans(ctx, st.DB, userID)
	if err != nil {
		return nil, err
	}
	states := make([]State, 0, len(recs))
	for i := range recs {
		s, err := decodeRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		states = append(states, *s)
	}
	return states, nil
}

// DeleteScan implements Store.
func (st SQLStore) DeleteScan(ctx context.Context, id string) error {
	return store.DeleteScan(ctx, st.DB, id)
}

// DeleteScansBefore implements Store.
func (st SQLStore) DeleteScansBefore(ctx context.Context, cutoff time.Time) ([]State, error) {
	recs, err := store.DeleteScansBefore(ctx, st.DB, cutoff)
	if err != nil {
		return nil, err
	}
	states := make([]State, 0, len(recs))
	for i := range recs {
		s, err := decodeRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		states = append(states, *s)
	}
	return states, nil
}

func decodeRecord(rec *store.ScanRecord) (*State, error) {
	s := &State{}
	if err := json.Unmarshal(rec.State, s); err != nil {
		return nil, fmt.Errorf("decoding scan %s: %w", rec.ID, err)
	}
	return s, nil
}
