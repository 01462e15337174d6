package fsutil

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetFilePath(t *testing.T) {
	root := t.TempDir()

	path, err := AssetFilePath(root, "fanbox", "Some Artist", "Episode 1: Pilot", "cover.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "fanbox", "Some Artist", "Episode 1_ Pilot", "files", "cover.png"), path)

	again, err := AssetFilePath(root, "fanbox", "Some Artist", "Episode 1: Pilot", "cover.png")
	require.NoError(t, err)
	assert.Equal(t, path, again, "same metadata must give the same path")
}

func TestAssetFilePath_StaysUnderRoot(t *testing.T) {
	root := t.TempDir()

	path, err := AssetFilePath(root, "..", "../../etc", "..", "../passwd")
	require.NoError(t, err)
	rel, err := filepath.Rel(root, path)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(rel, ".."), "path %s escapes root", path)
}

func TestAssetFilePath_RelativeRoot(t *testing.T) {
	_, err := AssetFilePath("relative", "p", "c", "t", "f")
	assert.Error(t, err)
}

func TestSanitizeSegment(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a/b\\c", "a_b_c"},
		{"what?*", "what__"},
		{"  padded  ", "padded"},
		{"trailing...", "trailing"},
		{"", "_"},
		{"..", "_"},
		{"tab\there", "tab_here"},
		{"日本語", "日本語"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeSegment(tt.in))
		})
	}
}

func TestPartialPath(t *testing.T) {
	assert.Equal(t, "/lib/a/files/x.bin.part", PartialPath("/lib/a/files/x.bin"))
	assert.Equal(t, "/lib/a/files/x.bin.part.token", PartialTokenPath("/lib/a/files/x.bin"))
}
