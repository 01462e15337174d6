package catalog

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/model"
)

const assetColumns = `provider_id, asset_id, title, creator, remote_modified, thumbnail_url, wanted, updated_at`

// AssetFilter selects assets for ListAssets. Zero values match everything.
type AssetFilter struct {
	Provider string
	Wanted   *bool
	Status   model.AssetStatus
}

// AssetSummary is an asset together with the download state of its files.
type AssetSummary struct {
	model.Asset
	Files      int               `json:"files"`
	Downloaded int               `json:"downloaded"`
	Status     model.AssetStatus `json:"status"`
}

// UpsertAsset inserts asset or overwrites every remote attribute of the
// existing row. Wanted is only written when the row is created. The stored
// row is returned.
func (c *Catalog) UpsertAsset(ctx context.Context, asset model.Asset) (*model.Asset, error) {
	var stored *model.Asset
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assets (`+assetColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (provider_id, asset_id) DO UPDATE SET
				title = excluded.title,
				creator = excluded.creator,
				remote_modified = excluded.remote_modified,
				thumbnail_url = excluded.thumbnail_url,
				updated_at = excluded.updated_at`,
			asset.ID.Provider, asset.ID.Remote, asset.Title, asset.Creator,
			formatTime(asset.RemoteModified), asset.ThumbnailURL,
			boolToInt(asset.Wanted), formatTime(c.now()),
		)
		if err != nil {
			return fmt.Errorf("upsert asset %s: %w", asset.ID, err)
		}
		stored, err = getAsset(ctx, tx, asset.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// GetAsset returns the asset with the given identity.
func (c *Catalog) GetAsset(ctx context.Context, id model.AssetID) (*model.Asset, error) {
	return getAsset(ctx, c.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAsset(ctx context.Context, q queryRower, id model.AssetID) (*model.Asset, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE provider_id = ? AND asset_id = ?`,
		id.Provider, id.Remote)
	asset, err := scanAsset(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, errors.ErrAssetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	return asset, nil
}

func scanAsset(s scanner, extra ...any) (*model.Asset, error) {
	var (
		a                 model.Asset
		modified, updated string
		wanted            int
	)
	dest := append([]any{
		&a.ID.Provider, &a.ID.Remote, &a.Title, &a.Creator,
		&modified, &a.ThumbnailURL, &wanted, &updated,
	}, extra...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	var err error
	if a.RemoteModified, err = parseTime(modified); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	a.Wanted = wanted != 0
	return &a, nil
}

// ListAssets returns the assets matching filter ordered by provider and title.
func (c *Catalog) ListAssets(ctx context.Context, filter AssetFilter) ([]AssetSummary, error) {
	var (
		where []string
		args  []any
	)
	if filter.Provider != "" {
		where = append(where, "provider_id = ?")
		args = append(args, filter.Provider)
	}
	if filter.Wanted != nil {
		where = append(where, "wanted = ?")
		args = append(args, boolToInt(*filter.Wanted))
	}
	switch filter.Status {
	case "":
	case model.StatusComplete:
		where = append(where, "total > 0 AND done = total")
	case model.StatusPartial:
		where = append(where, "done > 0 AND done < total")
	case model.StatusMissing:
		where = append(where, "done = 0")
	default:
		return nil, fmt.Errorf("unknown asset status %q", filter.Status)
	}

	query := `
		SELECT ` + assetColumns + `, total, done FROM (
			SELECT a.provider_id, a.asset_id, a.title, a.creator, a.remote_modified,
				a.thumbnail_url, a.wanted, a.updated_at,
				COALESCE(SUM(CASE WHEN f.file_id IS NOT NULL AND f.removed = 0 THEN 1 ELSE 0 END), 0) AS total,
				COALESCE(SUM(CASE WHEN f.removed = 0 AND f.digest <> '' THEN 1 ELSE 0 END), 0) AS done
			FROM assets a
			LEFT JOIN files f ON f.provider_id = a.provider_id AND f.asset_id = a.asset_id
			GROUP BY a.provider_id, a.asset_id
		)`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY provider_id, title, asset_id"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []AssetSummary
	for rows.Next() {
		var total, done int
		asset, err := scanAsset(rows, &total, &done)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, AssetSummary{
			Asset:      *asset,
			Files:      total,
			Downloaded: done,
			Status:     statusOf(total, done),
		})
	}
	return out, rows.Err()
}

func statusOf(total, done int) model.AssetStatus {
	switch {
	case total > 0 && done == total:
		return model.StatusComplete
	case done > 0:
		return model.StatusPartial
	default:
		return model.StatusMissing
	}
}

// SetWanted changes the local selection flag of an asset.
func (c *Catalog) SetWanted(ctx context.Context, id model.AssetID, wanted bool) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE assets SET wanted = ? WHERE provider_id = ? AND asset_id = ?`,
		boolToInt(wanted), id.Provider, id.Remote)
	if err != nil {
		return fmt.Errorf("set wanted on %s: %w", id, err)
	}
	return expectOneRow(res, fmt.Errorf("%s: %w", id, errors.ErrAssetNotFound))
}

// DeleteAsset removes an asset and, through the foreign key, all of its files.
// It is only called on explicit user request.
func (c *Catalog) DeleteAsset(ctx context.Context, id model.AssetID) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM assets WHERE provider_id = ? AND asset_id = ?`,
		id.Provider, id.Remote)
	if err != nil {
		return fmt.Errorf("delete asset %s: %w", id, err)
	}
	return expectOneRow(res, fmt.Errorf("%s: %w", id, errors.ErrAssetNotFound))
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Stats holds aggregate catalog counts.
type Stats struct {
	Assets          int   `json:"assets"`
	WantedAssets    int   `json:"wanted_assets"`
	Files           int   `json:"files"`
	DownloadedFiles int   `json:"downloaded_files"`
	RemovedFiles    int   `json:"removed_files"`
	DownloadedBytes int64 `json:"downloaded_bytes"`
}

// Stats returns aggregate counts over the whole catalog.
func (c *Catalog) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := c.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM assets),
			(SELECT COUNT(*) FROM assets WHERE wanted = 1),
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(*) FROM files WHERE digest <> ''),
			(SELECT COUNT(*) FROM files WHERE removed = 1),
			(SELECT COALESCE(SUM(size), 0) FROM files WHERE digest <> '')`,
	).Scan(&s.Assets, &s.WantedAssets, &s.Files, &s.DownloadedFiles, &s.RemovedFiles, &s.DownloadedBytes)
	if err != nil {
		return nil, fmt.Errorf("catalog stats: %w", err)
	}
	return &s, nil
}
