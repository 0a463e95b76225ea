package oracle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/xferwatch/core"
)

func TestTable_Lookup(t *testing.T) {
	t.Parallel()

	table := Default()

	tests := []struct {
		name   string
		url    string
		want   int64
		wantOK bool
	}{
		{
			name:   "data payload",
			url:    "https://cdn.example.com/game_1739472537000.data.br?v=1",
			want:   30978273,
			wantOK: true,
		},
		{
			name:   "mobile data payload",
			url:    "https://cdn.example.com/game_1739472537000_mobile.data.br",
			want:   30978273,
			wantOK: true,
		},
		{
			name:   "code payload",
			url:    "https://cdn.example.com/game.wasm.br",
			want:   56036135,
			wantOK: true,
		},
		{
			name:   "framework is not tracked",
			url:    "https://cdn.example.com/game.framework.js.br",
			wantOK: false,
		},
		{
			name:   "empty url",
			url:    "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := table.Lookup(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTable_FirstMatchWins(t *testing.T) {
	t.Parallel()

	table, err := New(
		Entry{Pattern: ".br", Size: 1},
		Entry{Pattern: ".data.br", Size: 2},
	)
	require.NoError(t, err)

	got, ok := table.Lookup("x.data.br")
	require.True(t, ok)
	assert.Equal(t, int64(1), got)
}

func TestTable_NilIsEmpty(t *testing.T) {
	t.Parallel()

	var table *Table
	_, ok := table.Lookup("x.data.br")
	assert.False(t, ok)
	assert.Zero(t, table.Len())
	assert.Nil(t, table.Entries())
}

func TestNew_RejectsInvalidEntries(t *testing.T) {
	t.Parallel()

	_, err := New(Entry{Pattern: "", Size: 10})
	require.ErrorIs(t, err, core.ErrInvalidOracle)

	_, err = New(Entry{Pattern: ".data.br", Size: 0})
	require.ErrorIs(t, err, core.ErrInvalidOracle)
}

func TestFromMap_SortsPatterns(t *testing.T) {
	t.Parallel()

	table, err := FromMap(map[string]int64{
		".wasm.br": 2,
		".data.br": 1,
	})
	require.NoError(t, err)

	entries := table.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, ".data.br", entries[0].Pattern)
	assert.Equal(t, ".wasm.br", entries[1].Pattern)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sizes.yaml")
	content := "sizes:\n  .data.br: 500\n  .wasm.br: 700\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := LoadFile(path)
	require.NoError(t, err)

	got, ok := table.Lookup("a.wasm.br")
	require.True(t, ok)
	assert.Equal(t, int64(700), got)
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Parse([]byte("sizes: [not, a, map]"))
	require.ErrorIs(t, err, core.ErrInvalidOracle)

	_, err = Parse([]byte("sizes:\n  .data.br: -1\n"))
	require.ErrorIs(t, err, core.ErrInvalidOracle)
}
