package transfer

import (
	"github.com/glorpus-work/hoard/pkg/fsutil"
	"github.com/glorpus-work/hoard/pkg/model"
)

// Status is the lifecycle state of an Intent.
type Status string

// Intent statuses.
const (
	StatusPending   Status = "pending"
	StatusInFlight  Status = "in-flight"
	StatusVerifying Status = "verifying"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
)

// Intent is one file that needs downloading. Intents live only for the
// duration of a run; a restart derives them again from the catalog.
type Intent struct {
	File        model.FileID
	Asset       model.AssetID
	Filename    string
	Destination string
	// ExpectedDigest is empty when the provider does not publish one.
	ExpectedDigest string
	// ChangeToken is recorded with the file after a successful download.
	ChangeToken string
	// Size is zero when unknown.
	Size     int64
	Offset   int64
	Attempts int
	Status   Status
	Err      error
	// Digest is the verified digest once Status is StatusDone.
	Digest string
}

// NewIntent builds the intent for downloading desc of asset below root.
func NewIntent(root string, asset *model.Asset, desc model.FileDescriptor, indicator model.ChangeIndicator) (*Intent, error) {
	dest, err := fsutil.AssetFilePath(root, asset.ID.Provider, asset.Creator, asset.Title, desc.Filename)
	if err != nil {
		return nil, err
	}
	return &Intent{
		File:           model.FileID{Provider: asset.ID.Provider, Remote: desc.ID},
		Asset:          asset.ID,
		Filename:       desc.Filename,
		Destination:    dest,
		ExpectedDigest: desc.Digest,
		ChangeToken:    indicator.Token(),
		Size:           desc.Size,
		Status:         StatusPending,
	}, nil
}

// PartialPath returns the temporary file the intent streams into.
func (it *Intent) PartialPath() string {
	return fsutil.PartialPath(it.Destination)
}

// TokenPath returns the file recording the ChangeToken the partial file was
// downloaded under.
func (it *Intent) TokenPath() string {
	return fsutil.PartialTokenPath(it.Destination)
}
