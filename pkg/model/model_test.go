package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndicator_Precedence(t *testing.T) {
	modified := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		desc FileDescriptor
		mod  time.Time
		want ChangeIndicator
	}{
		{
			name: "digest wins over token",
			desc: FileDescriptor{Digest: "d1", ChangeToken: "etag"},
			mod:  modified,
			want: ChangeIndicator{Kind: IndicatorDigest, Value: "d1"},
		},
		{
			name: "token wins over timestamp",
			desc: FileDescriptor{ChangeToken: "etag"},
			mod:  modified,
			want: ChangeIndicator{Kind: IndicatorToken, Value: "etag"},
		},
		{
			name: "timestamp fallback",
			desc: FileDescriptor{},
			mod:  modified,
			want: ChangeIndicator{Kind: IndicatorTimestamp, Value: "ts:2024-03-01T12:00:00Z"},
		},
		{
			name: "nothing available",
			desc: FileDescriptor{},
			want: ChangeIndicator{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Indicator(tt.desc, tt.mod))
		})
	}
}

func TestChangeIndicator_Matches(t *testing.T) {
	downloaded := &File{Digest: "ABC", ChangeToken: "etag-1"}

	assert.True(t, ChangeIndicator{Kind: IndicatorDigest, Value: "sha256:abc"}.Matches(downloaded))
	assert.False(t, ChangeIndicator{Kind: IndicatorDigest, Value: "def"}.Matches(downloaded))
	assert.True(t, ChangeIndicator{Kind: IndicatorToken, Value: "etag-1"}.Matches(downloaded))
	assert.False(t, ChangeIndicator{Kind: IndicatorToken, Value: "etag-2"}.Matches(downloaded))
	assert.True(t, ChangeIndicator{}.Matches(downloaded))

	assert.False(t, ChangeIndicator{Kind: IndicatorDigest, Value: "abc"}.Matches(&File{}), "file without digest is never current")
	assert.False(t, ChangeIndicator{}.Matches(nil))
}

func TestChangeIndicator_Token(t *testing.T) {
	assert.Empty(t, ChangeIndicator{Kind: IndicatorDigest, Value: "d"}.Token())
	assert.Equal(t, "etag", ChangeIndicator{Kind: IndicatorToken, Value: "etag"}.Token())
}

func TestRemoteAsset_ToAsset(t *testing.T) {
	r := RemoteAsset{ID: "42", Title: "Dragon", Creator: "Alice"}
	a := r.ToAsset("shop")
	assert.Equal(t, AssetID{Provider: "shop", Remote: "42"}, a.ID)
	assert.Equal(t, "Dragon", a.Title)
	assert.True(t, a.Wanted)
	assert.Equal(t, "shop/42", a.ID.String())
}

func TestParseAssetStatus(t *testing.T) {
	s, err := ParseAssetStatus("partial")
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, s)

	_, err = ParseAssetStatus("done")
	assert.Error(t, err)
}
