package catalog

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/model"
)

const fileColumns = `provider_id, file_id, asset_id, filename, size, path, digest, change_token, downloaded_at, removed`

// UpsertFile creates a file row or refreshes its remote attributes (owning
// asset, filename, size). Download state and the removed flag are never
// touched. It returns the stored row and whether it was created.
func (c *Catalog) UpsertFile(ctx context.Context, file model.File) (*model.File, bool, error) {
	if file.ID.Provider != file.Asset.Provider {
		return nil, false, fmt.Errorf("file %s belongs to provider %s, asset to %s",
			file.ID, file.ID.Provider, file.Asset.Provider)
	}

	var (
		stored  *model.File
		created bool
	)
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		_, err := getFile(ctx, tx, file.ID)
		switch {
		case stderrors.Is(err, errors.ErrFileNotFound):
			created = true
		case err != nil:
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO files (provider_id, file_id, asset_id, filename, size)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (provider_id, file_id) DO UPDATE SET
				asset_id = excluded.asset_id,
				filename = excluded.filename,
				size = excluded.size`,
			file.ID.Provider, file.ID.Remote, file.Asset.Remote, file.Filename, file.Size,
		)
		if err != nil {
			return fmt.Errorf("upsert file %s: %w", file.ID, err)
		}
		stored, err = getFile(ctx, tx, file.ID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// UpdateFileOnSuccess records a verified download. Fails with ErrFileNotFound
// if the row no longer exists and ErrFileRemoved if it was marked removed.
func (c *Catalog) UpdateFileOnSuccess(ctx context.Context, id model.FileID, path, digest, changeToken string, at time.Time) error {
	if digest == "" {
		return fmt.Errorf("update file %s: empty digest", id)
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getFile(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Removed {
			return fmt.Errorf("%s: %w", id, errors.ErrFileRemoved)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE files SET path = ?, digest = ?, change_token = ?, downloaded_at = ?
			WHERE provider_id = ? AND file_id = ?`,
			path, digest, changeToken, formatTime(at), id.Provider, id.Remote)
		if err != nil {
			return fmt.Errorf("update file %s: %w", id, err)
		}
		return nil
	})
}

// GetFile returns the file with the given identity.
func (c *Catalog) GetFile(ctx context.Context, id model.FileID) (*model.File, error) {
	return getFile(ctx, c.db, id)
}

func getFile(ctx context.Context, q queryRower, id model.FileID) (*model.File, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE provider_id = ? AND file_id = ?`,
		id.Provider, id.Remote)
	f, err := scanFile(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, errors.ErrFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", id, err)
	}
	return f, nil
}

func scanFile(s scanner) (*model.File, error) {
	var (
		f          model.File
		downloaded string
		removed    int
	)
	err := s.Scan(&f.ID.Provider, &f.ID.Remote, &f.Asset.Remote, &f.Filename, &f.Size,
		&f.Path, &f.Digest, &f.ChangeToken, &downloaded, &removed)
	if err != nil {
		return nil, err
	}
	f.Asset.Provider = f.ID.Provider
	if f.DownloadedAt, err = parseTime(downloaded); err != nil {
		return nil, err
	}
	f.Removed = removed != 0
	return &f, nil
}

// ListFiles returns the files of an asset ordered by filename.
func (c *Catalog) ListFiles(ctx context.Context, asset model.AssetID) ([]model.File, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE provider_id = ? AND asset_id = ? ORDER BY filename, file_id`,
		asset.Provider, asset.Remote)
	if err != nil {
		return nil, fmt.Errorf("list files of %s: %w", asset, err)
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// MarkRemoved records that the user deleted the local copy of a file. The
// digest and path are cleared; the reconciler will not enqueue the file again
// until ResetRemoved is called.
func (c *Catalog) MarkRemoved(ctx context.Context, id model.FileID) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE files SET removed = 1, digest = '', path = '', change_token = '', downloaded_at = ''
		WHERE provider_id = ? AND file_id = ?`,
		id.Provider, id.Remote)
	if err != nil {
		return fmt.Errorf("mark %s removed: %w", id, err)
	}
	return expectOneRow(res, fmt.Errorf("%s: %w", id, errors.ErrFileNotFound))
}

// ResetRemoved clears the removed flag so the next sync downloads the file again.
func (c *Catalog) ResetRemoved(ctx context.Context, id model.FileID) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE files SET removed = 0 WHERE provider_id = ? AND file_id = ?`,
		id.Provider, id.Remote)
	if err != nil {
		return fmt.Errorf("reset removed on %s: %w", id, err)
	}
	return expectOneRow(res, fmt.Errorf("%s: %w", id, errors.ErrFileNotFound))
}
