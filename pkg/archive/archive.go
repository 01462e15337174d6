// Package archive packs provider plugin directories into .tar.gz packages and
// reads files back out of a package, whether it is a directory or an archive.
package archive

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mholt/archives"

	"github.com/glorpus-work/hoard/pkg/fsutil"
)

// ErrFileNotInPackage is returned by ReadFile when the requested entry is absent.
var ErrFileNotInPackage = stderrors.New("file not found in package")

// Extension is the file extension of packed plugin packages.
const Extension = ".tar.gz"

// Create packs every file below sourceDir into a gzip compressed tarball at
// archivePath. Entries are stored relative to sourceDir.
func Create(ctx context.Context, sourceDir, archivePath string) error {
	absolutePath, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for source directory: %w", err)
	}
	info, err := os.Stat(absolutePath)
	if err != nil {
		return fmt.Errorf("failed to stat source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", sourceDir)
	}

	archiveFiles, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		absolutePath + string(os.PathSeparator): "",
	})
	if err != nil {
		return fmt.Errorf("failed to read files from disk: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), fsutil.DirModeDefault); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmpPath := archivePath + fsutil.PartialSuffix
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeDefault)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", archivePath, err)
	}

	format := archives.CompressedArchive{
		Compression: archives.Gz{},
		Archival:    archives.Tar{},
	}
	if err := format.Archive(ctx, file, archiveFiles); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return fsutil.Move(tmpPath, archivePath)
}

// ReadFile returns the content of name inside the package at path. path may
// be a directory or any archive format understood by archives.FileSystem.
func ReadFile(ctx context.Context, path, name string) ([]byte, error) {
	fsys, err := archives.FileSystem(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open package %s: %w", path, err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s in %s: %w", name, path, ErrFileNotInPackage)
		}
		return nil, fmt.Errorf("failed to read %s from %s: %w", name, path, err)
	}
	return data, nil
}

// IsPackage reports whether a directory entry looks like a plugin package.
func IsPackage(entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	name := entry.Name()
	return len(name) > len(Extension) && name[len(name)-len(Extension):] == Extension
}
