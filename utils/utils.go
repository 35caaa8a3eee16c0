package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	nonFilenameChar = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// SanitizeFilename turns an identifier into a filename stem.
// Whitespace runs become underscores, then everything outside [A-Za-z0-9_] is dropped.
// Only filenames go through this; logged identifiers stay untouched.
func SanitizeFilename(name string) string {
	name = whitespaceRun.ReplaceAllString(name, "_")
	return nonFilenameChar.ReplaceAllString(name, "")
}

// GetDefaultDatabasePath returns the default path for the audit database file
func GetDefaultDatabasePath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "downloads.db"
	}
	return filepath.Join(filepath.Dir(exePath), "downloads.db")
}

// GetConfigDir returns the per-user directory holding the last used settings
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".digital_asset_downloader"
	}
	return filepath.Join(home, ".digital_asset_downloader")
}

// ClampInt limits v to [lo, hi]
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ParseIntInRange parses and validates an integer flag value
func ParseIntInRange(name, value string, lo, hi int) (int, error) {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s value '%s': %w", name, value, err)
	}
	if parsed < lo || parsed > hi {
		return 0, fmt.Errorf("invalid %s value '%s': must be between %d and %d", name, value, lo, hi)
	}
	return parsed, nil
}
