package safepath

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/xferwatch/core"
)

const osWindows = "windows"

func TestValidatePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "simple file", path: "game.data.br"},
		{name: "nested path", path: "build/game.data.br"},
		{name: "dot prefix", path: "./game.data.br"},
		{name: "single dot component", path: "build/./game.data.br"},
		{name: "empty path", path: ""},
		{name: "double dot not as component", path: "game..data"},
		{name: "triple dot", path: ".../game"},
		{name: "parent traversal at start", path: "../game", wantErr: core.ErrPathTraversal},
		{name: "parent traversal in middle", path: "build/../game", wantErr: core.ErrPathTraversal},
		{name: "parent only", path: "..", wantErr: core.ErrPathTraversal},
		{name: "absolute path unix", path: "/etc/passwd", wantErr: core.ErrPathTraversal},
		{name: "null byte", path: "game\x00.br", wantErr: core.ErrPathTraversal},
		{name: "backslash traversal at start", path: "..\\game", wantErr: core.ErrPathTraversal},
		{name: "backslash traversal in middle", path: "build\\..\\game", wantErr: core.ErrPathTraversal},
		{name: "mixed slash traversal", path: "build/..\\game", wantErr: core.ErrPathTraversal},
		{name: "leading backslash", path: "\\game", wantErr: core.ErrPathTraversal},
	}

	if runtime.GOOS == osWindows {
		tests = append(tests,
			struct {
				name    string
				path    string
				wantErr error
			}{name: "windows drive letter", path: "C:\\Windows\\System32", wantErr: core.ErrPathTraversal},
		)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidatePath(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr, "ValidatePath(%q)", tt.path)
			} else {
				assert.NoError(t, err, "ValidatePath(%q)", tt.path)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	got, err := Join(dir, "game.data.br")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "game.data.br"), got)

	for _, name := range []string{"", "..", "../outside", "/etc/passwd"} {
		_, err := Join(dir, name)
		assert.ErrorIs(t, err, core.ErrPathTraversal, "Join(%q)", name)
	}
}
