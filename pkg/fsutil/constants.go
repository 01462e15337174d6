package fsutil

// File and directory permission constants.
const (
	// FileModeDefault is used for mirrored asset files: -rw-r--r--.
	FileModeDefault = 0o644
	// FileModeSecure is used for the catalog and partial downloads: -rw-r-----.
	FileModeSecure = 0o640

	// DirModeDefault is used for the storage layout: drwxr-xr-x.
	DirModeDefault = 0o755
	// DirModeSecure is used for state and plugin directories: drwxr-x---.
	DirModeSecure = 0o750
)

// Suffixes appended to a final path to name its colocated temporary files.
const (
	PartialSuffix      = ".part"
	// PartialTokenSuffix names the file recording which remote version a
	// partial download belongs to.
	PartialTokenSuffix = ".part.token"
)
