package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/nomisma/internal/db"
	"github.com/erazemk/nomisma/internal/model"
	"github.com/erazemk/nomisma/internal/store"
)

func TestSQLStoreRoundTrip(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user, err := store.CreateUser(ctx, database, "op", "hash", model.RoleManager)
	require.NoError(t, err)

	st := SQLStore{DB: database}
	s, _ := ApplyCapture(New("scan-1", user.ID, nil, "", time.Now()), good("cap/o.jpg", "obverse"))
	s.UpdatedAt = time.Now()
	require.NoError(t, st.SaveScan(ctx, &s))

	got, err := st.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StepAnalyze, got.Step)
	assert.Equal(t, "cap/o.jpg", got.Captures.Obverse.FilePath)
	assert.Equal(t, model.SideReverse, got.CurrentSide)

	list, err := st.ListScans(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	missing, err := st.GetScan(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	expired, err := st.DeleteScansBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "scan-1", expired[0].ID)
	assert.Equal(t, StepAnalyze, expired[0].Step)
	require.NoError(t, st.DeleteScan(ctx, "scan-1"))
}
