package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/model"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testAsset(provider, id string) model.Asset {
	return model.Asset{
		ID:             model.AssetID{Provider: provider, Remote: id},
		Title:          "Title " + id,
		Creator:        "Creator",
		RemoteModified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Wanted:         true,
	}
}

func testFile(provider, asset, id string) model.File {
	return model.File{
		ID:       model.FileID{Provider: provider, Remote: id},
		Asset:    model.AssetID{Provider: provider, Remote: asset},
		Filename: id + ".stl",
		Size:     1024,
	}
}

func TestOpen_CreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", FileName)

	for i := 0; i < 3; i++ {
		c, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, c.Close())
	}

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_RelativePath(t *testing.T) {
	_, err := Open("relative/catalog.db")
	assert.ErrorIs(t, err, errors.ErrInvalidPath)
}

func TestUpsertAsset_PreservesWanted(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	asset := testAsset("shop", "a1")
	stored, err := c.UpsertAsset(ctx, asset)
	require.NoError(t, err)
	assert.True(t, stored.Wanted)
	assert.False(t, stored.UpdatedAt.IsZero())

	require.NoError(t, c.SetWanted(ctx, asset.ID, false))

	asset.Title = "Renamed"
	asset.Wanted = true
	stored, err = c.UpsertAsset(ctx, asset)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title, "remote attributes are overwritten")
	assert.False(t, stored.Wanted, "wanted is local only")
	assert.True(t, asset.RemoteModified.Equal(stored.RemoteModified))
}

func TestGetAsset_NotFound(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.GetAsset(context.Background(), model.AssetID{Provider: "shop", Remote: "nope"})
	assert.ErrorIs(t, err, errors.ErrAssetNotFound)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestUpsertFile(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	_, err := c.UpsertAsset(ctx, testAsset("shop", "a1"))
	require.NoError(t, err)

	file := testFile("shop", "a1", "f1")
	stored, created, err := c.UpsertFile(ctx, file)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, stored.Digest)
	assert.Equal(t, file.Asset, stored.Asset)

	now := time.Now()
	require.NoError(t, c.UpdateFileOnSuccess(ctx, file.ID, "/lib/f1.stl", "d1", "etag", now))

	file.Size = 2048
	stored, created, err = c.UpsertFile(ctx, file)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(2048), stored.Size)
	assert.Equal(t, "d1", stored.Digest, "download state survives a refresh")
	assert.Equal(t, "/lib/f1.stl", stored.Path)
	assert.Equal(t, "etag", stored.ChangeToken)
}

func TestUpsertFile_RequiresAsset(t *testing.T) {
	c := newTestCatalog(t)
	_, _, err := c.UpsertFile(context.Background(), testFile("shop", "missing", "f1"))
	assert.Error(t, err)
}

func TestUpdateFileOnSuccess(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	_, err := c.UpsertAsset(ctx, testAsset("shop", "a1"))
	require.NoError(t, err)
	file := testFile("shop", "a1", "f1")
	_, _, err = c.UpsertFile(ctx, file)
	require.NoError(t, err)

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, c.UpdateFileOnSuccess(ctx, file.ID, "/lib/x", "d1", "", at))

	got, err := c.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "d1", got.Digest)
	assert.Equal(t, "/lib/x", got.Path)
	assert.True(t, at.Equal(got.DownloadedAt))
	assert.True(t, got.Downloaded())

	err = c.UpdateFileOnSuccess(ctx, model.FileID{Provider: "shop", Remote: "zz"}, "/x", "d", "", at)
	assert.ErrorIs(t, err, errors.ErrFileNotFound)

	assert.Error(t, c.UpdateFileOnSuccess(ctx, file.ID, "/x", "", "", at))
}

func TestMarkRemoved(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	_, err := c.UpsertAsset(ctx, testAsset("shop", "a1"))
	require.NoError(t, err)
	file := testFile("shop", "a1", "f1")
	_, _, err = c.UpsertFile(ctx, file)
	require.NoError(t, err)
	require.NoError(t, c.UpdateFileOnSuccess(ctx, file.ID, "/lib/x", "d1", "", time.Now()))

	require.NoError(t, c.MarkRemoved(ctx, file.ID))
	got, err := c.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, got.Removed)
	assert.Empty(t, got.Digest, "digest is present only for non-removed files")
	assert.Empty(t, got.Path)

	err = c.UpdateFileOnSuccess(ctx, file.ID, "/lib/x", "d2", "", time.Now())
	assert.ErrorIs(t, err, errors.ErrFileRemoved)

	require.NoError(t, c.ResetRemoved(ctx, file.ID))
	got, err = c.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.False(t, got.Removed)

	assert.ErrorIs(t, c.MarkRemoved(ctx, model.FileID{Provider: "shop", Remote: "zz"}), errors.ErrFileNotFound)
}

func TestListAssets_Filters(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	// a1: complete, a2: partial, a3: missing and unwanted, b1: other provider.
	for _, a := range []model.Asset{testAsset("shop", "a1"), testAsset("shop", "a2"), testAsset("shop", "a3"), testAsset("other", "b1")} {
		_, err := c.UpsertAsset(ctx, a)
		require.NoError(t, err)
	}
	require.NoError(t, c.SetWanted(ctx, model.AssetID{Provider: "shop", Remote: "a3"}, false))

	for _, f := range []model.File{
		testFile("shop", "a1", "f1"),
		testFile("shop", "a2", "f2"),
		testFile("shop", "a2", "f3"),
		testFile("shop", "a3", "f4"),
	} {
		_, _, err := c.UpsertFile(ctx, f)
		require.NoError(t, err)
	}
	require.NoError(t, c.UpdateFileOnSuccess(ctx, model.FileID{Provider: "shop", Remote: "f1"}, "/p1", "d1", "", time.Now()))
	require.NoError(t, c.UpdateFileOnSuccess(ctx, model.FileID{Provider: "shop", Remote: "f2"}, "/p2", "d2", "", time.Now()))

	ids := func(list []AssetSummary) []string {
		var out []string
		for _, a := range list {
			out = append(out, a.ID.String())
		}
		return out
	}
	wanted := true
	unwanted := false

	tests := []struct {
		name   string
		filter AssetFilter
		want   []string
	}{
		{name: "all", filter: AssetFilter{}, want: []string{"other/b1", "shop/a1", "shop/a2", "shop/a3"}},
		{name: "by provider", filter: AssetFilter{Provider: "shop"}, want: []string{"shop/a1", "shop/a2", "shop/a3"}},
		{name: "wanted", filter: AssetFilter{Provider: "shop", Wanted: &wanted}, want: []string{"shop/a1", "shop/a2"}},
		{name: "unwanted", filter: AssetFilter{Wanted: &unwanted}, want: []string{"shop/a3"}},
		{name: "complete", filter: AssetFilter{Status: model.StatusComplete}, want: []string{"shop/a1"}},
		{name: "partial", filter: AssetFilter{Status: model.StatusPartial}, want: []string{"shop/a2"}},
		{name: "missing", filter: AssetFilter{Status: model.StatusMissing}, want: []string{"other/b1", "shop/a3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ListAssets(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	partial, err := c.ListAssets(ctx, AssetFilter{Status: model.StatusPartial})
	require.NoError(t, err)
	require.Len(t, partial, 1)
	assert.Equal(t, 2, partial[0].Files)
	assert.Equal(t, 1, partial[0].Downloaded)

	_, err = c.ListAssets(ctx, AssetFilter{Status: "bogus"})
	assert.Error(t, err)
}

func TestDeleteAsset_CascadesToFiles(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	asset := testAsset("shop", "a1")
	_, err := c.UpsertAsset(ctx, asset)
	require.NoError(t, err)
	_, _, err = c.UpsertFile(ctx, testFile("shop", "a1", "f1"))
	require.NoError(t, err)

	require.NoError(t, c.DeleteAsset(ctx, asset.ID))

	_, err = c.GetFile(ctx, model.FileID{Provider: "shop", Remote: "f1"})
	assert.ErrorIs(t, err, errors.ErrFileNotFound)
	assert.ErrorIs(t, c.DeleteAsset(ctx, asset.ID), errors.ErrAssetNotFound)
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	_, err := c.UpsertAsset(ctx, testAsset("shop", "a1"))
	require.NoError(t, err)
	for _, id := range []string{"f2", "f1"} {
		_, _, err := c.UpsertFile(ctx, testFile("shop", "a1", id))
		require.NoError(t, err)
	}

	files, err := c.ListFiles(ctx, model.AssetID{Provider: "shop", Remote: "a1"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "f1.stl", files[0].Filename)
	assert.Equal(t, "f2.stl", files[1].Filename)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	_, err := c.UpsertAsset(ctx, testAsset("shop", "a1"))
	require.NoError(t, err)
	for _, id := range []string{"f1", "f2", "f3"} {
		_, _, err := c.UpsertFile(ctx, testFile("shop", "a1", id))
		require.NoError(t, err)
	}
	require.NoError(t, c.UpdateFileOnSuccess(ctx, model.FileID{Provider: "shop", Remote: "f1"}, "/p", "d", "", time.Now()))
	require.NoError(t, c.MarkRemoved(ctx, model.FileID{Provider: "shop", Remote: "f2"}))

	s, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Assets:          1,
		WantedAssets:    1,
		Files:           3,
		DownloadedFiles: 1,
		RemovedFiles:    1,
		DownloadedBytes: 1024,
	}, *s)
}
