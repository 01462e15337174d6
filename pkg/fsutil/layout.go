package fsutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// filesDir is the fixed directory below each asset holding its files.
const filesDir = "files"

// AssetFilePath derives the final location of a mirrored file:
//
//	<root>/<provider>/<creator>/<asset-title>/files/<filename>
//
// Every segment is passed through SanitizeSegment, so the same metadata always
// yields the same path and no segment can escape root.
func AssetFilePath(root, provider, creator, title, filename string) (string, error) {
	if root == "" || !filepath.IsAbs(root) {
		return "", fmt.Errorf("library root must be absolute: %q", root)
	}
	return filepath.Join(
		root,
		SanitizeSegment(provider),
		SanitizeSegment(creator),
		SanitizeSegment(title),
		filesDir,
		SanitizeSegment(filename),
	), nil
}

// PartialPath returns the temporary download path colocated with finalPath.
func PartialPath(finalPath string) string {
	return finalPath + PartialSuffix
}

// PartialTokenPath returns the path of the version marker kept next to the
// partial download of finalPath.
func PartialTokenPath(finalPath string) string {
	return finalPath + PartialTokenSuffix
}

// SanitizeSegment turns an arbitrary remote string into a single safe path
// segment. Separators, characters reserved on Windows and control characters
// become '_'; leading and trailing spaces and trailing dots are trimmed.
func SanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(b.String(), ". ")
	if out == "" || out == "." || out == ".." {
		return "_"
	}
	return out
}
