package digest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/hoard/pkg/errors"
)

// sha256("hello world")
const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestSum(t *testing.T) {
	got, err := Sum(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, helloDigest, got)
	assert.Len(t, got, Size)
	assert.Equal(t, helloDigest, SumBytes([]byte("hello world")))
}

func TestSum_Deterministic(t *testing.T) {
	a, err := Sum(strings.NewReader("same"))
	require.NoError(t, err)
	b, err := Sum(strings.NewReader("same"))
	require.NoError(t, err)
	c, err := Sum(strings.NewReader("different"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	tests := []struct {
		name     string
		expected string
		wantErr  bool
	}{
		{name: "matching digest", expected: helloDigest},
		{name: "uppercase with prefix", expected: "SHA256:" + strings.ToUpper(helloDigest)},
		{name: "no expected digest", expected: ""},
		{name: "mismatch", expected: strings.Repeat("0", Size), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Verify(path, tt.expected)
			assert.Equal(t, helloDigest, got)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrIntegrity)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerify_MissingFile(t *testing.T) {
	_, err := Verify(filepath.Join(t.TempDir(), "missing"), helloDigest)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errors.ErrIntegrity)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(helloDigest))
	assert.True(t, Valid("sha256:"+helloDigest))
	assert.False(t, Valid("abc"))
	assert.False(t, Valid(strings.Repeat("z", Size)))
}
