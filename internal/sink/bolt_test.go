package sink

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/xferwatch/core"
)

func testSummary(i int) core.Summary {
	return core.Summary{
		ID:            fmt.Sprintf("id-%d", i),
		Key:           fmt.Sprintf("https://cdn/%d.data.br", i),
		URL:           fmt.Sprintf("https://cdn/%d.data.br", i),
		Method:        "GET",
		Transport:     core.TransportStream,
		Elapsed:       1500 * time.Millisecond,
		DeclaredTotal: 1000,
		Loaded:        1000,
		Reported:      1000,
		AverageSpeed:  1.25,
		Digest:        "sha256:abc",
		Text:          "1.50 s, total: 0.00 MB, downloaded: 0.00 MB, avg speed: 1.25 MB/s",
		CompletedAt:   time.Date(2025, 2, 13, 10, 30, i, 0, time.UTC),
	}
}

func TestFromSummary(t *testing.T) {
	t.Parallel()

	e := FromSummary(testSummary(1))
	assert.Equal(t, "id-1", e.ID)
	assert.Equal(t, "stream", e.Transport)
	assert.Equal(t, int64(1500), e.ElapsedMS)
	assert.Equal(t, "2025-02-13T10:30:01Z", e.CompletedAt)
	assert.False(t, e.NoBody)
}

func TestBolt_RecordAndList(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	b, err := OpenBolt(path)
	require.NoError(t, err)

	ctx := context.Background()
	for i := range 3 {
		require.NoError(t, b.Record(ctx, testSummary(i)))
	}

	all, err := b.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "id-0", all[0].ID)
	assert.Equal(t, "id-2", all[2].ID)

	recent, err := b.List(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "id-1", recent[0].ID)
	assert.Equal(t, "id-2", recent[1].ID)

	require.NoError(t, b.Close())
}

func TestBolt_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	b, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, b.Record(context.Background(), testSummary(7)))
	require.NoError(t, b.Close())

	b, err = OpenBolt(path)
	require.NoError(t, err)
	defer b.Close()

	entries, err := b.List(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testSummary(7).Text, entries[0].Text)
}

func TestOpenBolt_InvalidPath(t *testing.T) {
	t.Parallel()

	_, err := OpenBolt(filepath.Join(t.TempDir(), "missing", "history.db"))
	require.Error(t, err)
}

func TestEntryFromHash(t *testing.T) {
	t.Parallel()

	e := entryFromHash(map[string]string{
		"id":             "abc",
		"transport":      "event",
		"elapsed_ms":     "250",
		"declared_total": "0",
		"loaded":         "42",
		"avg_speed":      "3.5",
		"no_body":        "true",
	})
	assert.Equal(t, "abc", e.ID)
	assert.Equal(t, int64(250), e.ElapsedMS)
	assert.Equal(t, int64(42), e.Loaded)
	assert.InDelta(t, 3.5, e.AverageSpeed, 1e-9)
	assert.True(t, e.NoBody)
}
