package aggregate

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/xferwatch/core"
)

func TestTracker_AllDoneWithTwoTransfers(t *testing.T) {
	t.Parallel()

	tr := New()
	assert.False(t, tr.AllDone(), "no transfers matched yet")

	a := tr.Register("https://x/a.data.br")
	b := tr.Register("https://x/b.wasm.br")
	assert.False(t, tr.AllDone())

	require.True(t, tr.Complete(a, core.Summary{Text: "done a"}))
	assert.False(t, tr.AllDone())

	require.True(t, tr.Complete(b, core.Summary{Text: "done b"}))
	assert.True(t, tr.AllDone())

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.TotalMatched)
	assert.Equal(t, 2, snap.TotalCompleted)
	assert.True(t, snap.AllDone)
	assert.Equal(t, map[string]string{a: "done a", b: "done b"}, snap.Results)
}

func TestTracker_CompleteIsIdempotent(t *testing.T) {
	t.Parallel()

	tr := New()
	key := tr.Register("https://x/a.data.br")
	tr.Register("https://x/b.data.br")

	require.True(t, tr.Complete(key, core.Summary{Text: "first"}))
	assert.False(t, tr.Complete(key, core.Summary{Text: "second"}))

	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.TotalCompleted)
	assert.Equal(t, "first", snap.Results[key])
	assert.False(t, snap.AllDone)
}

func TestTracker_CompleteUnknownKey(t *testing.T) {
	t.Parallel()

	tr := New()
	assert.False(t, tr.Complete("nope", core.Summary{}))
	assert.Zero(t, tr.Snapshot().TotalCompleted)
}

func TestTracker_DuplicateURLsGetDistinctKeys(t *testing.T) {
	t.Parallel()

	tr := New()
	u := "https://x/a.data.br"
	k1 := tr.Register(u)
	k2 := tr.Register(u)
	k3 := tr.Register(u)

	assert.Equal(t, u, k1)
	assert.Equal(t, u+"#2", k2)
	assert.Equal(t, u+"#3", k3)
	assert.ElementsMatch(t, []string{k1, k2, k3}, tr.Pending())

	require.True(t, tr.Complete(k2, core.Summary{Text: "two"}))
	s, ok := tr.Summary(k2)
	require.True(t, ok)
	assert.Equal(t, "two", s.Text)
	assert.ElementsMatch(t, []string{k1, k3}, tr.Pending())
}

func TestTracker_SuffixCollidesWithFragmentURL(t *testing.T) {
	t.Parallel()

	const u = "https://x/a.data.br"

	tests := []struct {
		name  string
		order []string
		want  []string
	}{
		{
			name:  "fragment registered last",
			order: []string{u, u, u + "#2"},
			want:  []string{u, u + "#2", u + "#2#2"},
		},
		{
			name:  "fragment registered first",
			order: []string{u + "#2", u, u},
			want:  []string{u + "#2", u, u + "#3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := New()
			keys := make([]string, 0, len(tt.order))
			for _, url := range tt.order {
				keys = append(keys, tr.Register(url))
			}
			assert.Equal(t, tt.want, keys)

			for _, key := range keys {
				require.True(t, tr.Complete(key, core.Summary{Text: "ok"}), "complete %s", key)
			}
			snap := tr.Snapshot()
			assert.Equal(t, 3, snap.TotalMatched)
			assert.Equal(t, 3, snap.TotalCompleted)
			assert.True(t, snap.AllDone)
		})
	}
}

func TestTracker_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	tr := New()
	key := tr.Register("u.data.br")
	tr.Complete(key, core.Summary{Text: "ok"})

	snap := tr.Snapshot()
	snap.Results[key] = "mutated"
	assert.Equal(t, "ok", tr.Snapshot().Results[key])
}

func TestTracker_Concurrent(t *testing.T) {
	t.Parallel()

	tr := New()
	const n = 64

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := tr.Register(fmt.Sprintf("https://x/%d.data.br", i%8))
			tr.Complete(key, core.Summary{Text: "ok"})
		}()
	}
	wg.Wait()

	snap := tr.Snapshot()
	assert.Equal(t, n, snap.TotalMatched)
	assert.Equal(t, n, snap.TotalCompleted)
	assert.Len(t, snap.Results, n)
	assert.True(t, snap.AllDone)
	assert.LessOrEqual(t, snap.TotalCompleted, snap.TotalMatched)
}
