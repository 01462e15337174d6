package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the name of the application used in paths.
const AppName = "hoard"

// GetDataDir returns the platform-specific data directory for the application.
// On Linux: $XDG_DATA_HOME/hoard or ~/.local/share/hoard
// Elsewhere: os.UserConfigDir()/hoard
func GetDataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	if runtime.GOOS == "linux" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", AppName), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

// GetLibraryDir returns the default root of the mirrored library.
func GetLibraryDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Hoard"), nil
}
