package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodhub/internal/models"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	entries := []models.Notification{
		{Topic: "vendor:v1", Event: models.EventNewOrder, Payload: []byte(`{"orderId":"o1"}`), EmittedAt: base},
		{Topic: "order:o1", Event: models.EventStatusChange, Payload: []byte(`{"status":"ready"}`), EmittedAt: base.Add(time.Second)},
		{Topic: "vendor:v1", Event: models.EventStatusChange, Payload: []byte(`{"status":"ready"}`), EmittedAt: base.Add(2 * time.Second)},
	}
	for _, n := range entries {
		require.NoError(t, j.Record(ctx, n))
	}

	all, err := j.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "vendor:v1", all[0].Topic)
	assert.Equal(t, models.EventStatusChange, all[0].Event)
	assert.True(t, all[2].EmittedAt.Equal(base))
	assert.JSONEq(t, `{"orderId":"o1"}`, string(all[2].Payload))

	vendor, err := j.Recent(ctx, "vendor:v1", 1)
	require.NoError(t, err)
	require.Len(t, vendor, 1)
	assert.True(t, vendor[0].EmittedAt.Equal(base.Add(2*time.Second)))

	none, err := j.Recent(ctx, "vendor:v9", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
