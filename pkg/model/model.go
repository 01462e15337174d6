// Package model defines the records shared by the catalog, the providers, the
// reconciler and the transfer engine.
package model

import (
	"fmt"
	"time"
)

// AssetID identifies a remote asset within the namespace of its provider.
type AssetID struct {
	Provider string `json:"provider"`
	Remote   string `json:"id"`
}

func (id AssetID) String() string {
	return fmt.Sprintf("%s/%s", id.Provider, id.Remote)
}

// FileID identifies a remote file within the namespace of its provider.
type FileID struct {
	Provider string `json:"provider"`
	Remote   string `json:"id"`
}

func (id FileID) String() string {
	return fmt.Sprintf("%s/%s", id.Provider, id.Remote)
}

// Asset is a remote content item as recorded in the catalog.
type Asset struct {
	ID             AssetID   `json:"id"`
	Title          string    `json:"title"`
	Creator        string    `json:"creator"`
	RemoteModified time.Time `json:"remote_modified"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty"`
	// Wanted is the local selection flag. The remote never changes it.
	Wanted    bool      `json:"wanted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// File is one downloadable artifact of an Asset.
// Digest and Path are set only after a verified download and cleared when the
// file is marked removed.
type File struct {
	ID           FileID    `json:"id"`
	Asset        AssetID   `json:"asset"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	Path         string    `json:"path,omitempty"`
	Digest       string    `json:"digest,omitempty"`
	ChangeToken  string    `json:"change_token,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at,omitempty"`
	Removed      bool      `json:"removed"`
}

// Downloaded reports whether the file has a verified local copy.
func (f *File) Downloaded() bool {
	return f.Digest != "" && !f.Removed
}

// RemoteAsset is the metadata a provider returns for one asset while enumerating.
type RemoteAsset struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Creator      string    `json:"creator"`
	Modified     time.Time `json:"modified"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// ToAsset converts a remote asset of provider into a catalog asset.
func (r RemoteAsset) ToAsset(provider string) Asset {
	return Asset{
		ID:             AssetID{Provider: provider, Remote: r.ID},
		Title:          r.Title,
		Creator:        r.Creator,
		RemoteModified: r.Modified,
		ThumbnailURL:   r.ThumbnailURL,
		Wanted:         true,
	}
}

// FileDescriptor describes one remote file of an asset.
// Size is zero when unknown. Digest and ChangeToken are optional.
type FileDescriptor struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size,omitempty"`
	Digest      string `json:"digest,omitempty"`
	ChangeToken string `json:"change_token,omitempty"`
}

// AssetStatus summarizes how much of an asset is present locally.
type AssetStatus string

const (
	// StatusComplete means every non-removed file has been downloaded.
	StatusComplete AssetStatus = "complete"
	// StatusPartial means some but not all files have been downloaded.
	StatusPartial AssetStatus = "partial"
	// StatusMissing means no file has been downloaded.
	StatusMissing AssetStatus = "missing"
)

// ParseAssetStatus validates a status string.
func ParseAssetStatus(s string) (AssetStatus, error) {
	switch AssetStatus(s) {
	case StatusComplete, StatusPartial, StatusMissing:
		return AssetStatus(s), nil
	default:
		return "", fmt.Errorf("invalid asset status %q, must be one of: complete, partial, missing", s)
	}
}
