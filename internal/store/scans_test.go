package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/nomisma/internal/db"
	"github.com/erazemk/nomisma/internal/model"
)

func TestSaveAndGetScan(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user, _ := CreateUser(ctx, database, "op", "hash", model.RoleManager)
	now := time.Now().UTC().Truncate(time.Second)

	rec := &ScanRecord{
		ID:        "scan-1",
		UserID:    user.ID,
		Step:      "capture",
		State:     []byte(`{"step":"capture"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := SaveScan(ctx, database, rec); err != nil {
		t.Fatalf("SaveScan: %v", err)
	}

	rec.Step = "edit"
	rec.State = []byte(`{"step":"edit"}`)
	rec.UpdatedAt = now.Add(time.Minute)
	if err := SaveScan(ctx, database, rec); err != nil {
		t.Fatalf("SaveScan update: %v", err)
	}

	got, err := GetScan(ctx, database, "scan-1")
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got == nil {
		t.Fatal("expected scan, got nil")
	}
	if got.Step != "edit" || string(got.State) != `{"step":"edit"}` {
		t.Errorf("unexpected scan %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at changed on update: %v", got.CreatedAt)
	}

	missing, err := GetScan(ctx, database, "nope")
	if err != nil {
		t.Fatalf("GetScan missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing scan")
	}
}

func TestListAndDeleteScans(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	a, _ := CreateUser(ctx, database, "a", "hash", model.RoleManager)
	b, _ := CreateUser(ctx, database, "b", "hash", model.RoleManager)
	now := time.Now().UTC()

	for i, id := range []string{"s1", "s2"} {
		SaveScan(ctx, database, &ScanRecord{
			ID: id, UserID: a.ID, Step: "capture", State: []byte(`{}`),
			CreatedAt: now, UpdatedAt: now.Add(time.Duration(i) * time.Minute),
		})
	}
	SaveScan(ctx, database, &ScanRecord{ID: "s3", UserID: b.ID, Step: "edit", State: []byte(`{}`), CreatedAt: now, UpdatedAt: now})

	recs, err := ListScans(ctx, database, a.ID)
	if err != nil {
		t.Fatalf("ListScans: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 scans, got %d", len(recs))
	}
	if recs[0].ID != "s2" {
		t.Errorf("expected most recent scan first, got %q", recs[0].ID)
	}

	if err := DeleteScan(ctx, database, "s1"); err != nil {
		t.Fatalf("DeleteScan: %v", err)
	}
	recs, _ = ListScans(ctx, database, a.ID)
	if len(recs) != 1 {
		t.Errorf("expected 1 scan after delete, got %d", len(recs))
	}
}

func TestDeleteScansBefore(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user, _ := CreateUser(ctx, database, "op", "hash", model.RoleManager)
	now := time.Now().UTC()

	SaveScan(ctx, database, &ScanRecord{ID: "old", UserID: user.ID, Step: "capture", State: []byte(`{}`), CreatedAt: now, UpdatedAt: now.Add(-2 * time.Hour)})
	SaveScan(ctx, database, &ScanRecord{ID: "new", UserID: user.ID, Step: "capture", State: []byte(`{}`), CreatedAt: now, UpdatedAt: now})

	expired, err := DeleteScansBefore(ctx, database, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteScansBefore: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("expected [old], got %v", expired)
	}
	if expired[0].Step != "capture" || string(expired[0].State) != `{}` || expired[0].UserID != user.ID {
		t.Errorf("expired record not returned in full: %+v", expired[0])
	}

	if got, _ := GetScan(ctx, database, "new"); got == nil {
		t.Error("recent scan should remain")
	}
}
