// Package locator decides where the bytes for a work item come from.
package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

// Origin identifies which resolution rule matched
type Origin string

const (
	OriginOverrideFolder Origin = "override_folder"
	OriginDirectory      Origin = "directory"
	OriginLocalFile      Origin = "local_file"
	OriginRemote         Origin = "remote"
)

// Resolution is the resolved byte source for a work item
type Resolution struct {
	Origin Origin
	// Path is a local file path, or the URL when Origin is OriginRemote
	Path string
	// Candidates is the number of matching files seen in a scanned directory
	Candidates int
}

// IsLocal reports whether the bytes are read from disk
func (r Resolution) IsLocal() bool {
	return r.Origin != OriginRemote
}

// Message is the human readable outcome used for successful local copies
func (r Resolution) Message() string {
	switch r.Origin {
	case OriginOverrideFolder:
		return "File copied from source folder"
	case OriginDirectory:
		return fmt.Sprintf("File copied from directory (%d images found)", r.Candidates)
	case OriginLocalFile:
		return "File copied successfully"
	default:
		return "Success"
	}
}

// imageExtensions are the extensions picked up when a source is a directory
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
}

// IsImageFile checks if a path carries a recognized image extension
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Locator resolves work item sources; it only ever reads the filesystem
type Locator struct{}

// New creates a Locator
func New() *Locator {
	return &Locator{}
}

// Resolve applies the resolution order: override folder, directory scan, direct file, URL
func (l *Locator) Resolve(item types.WorkItem) (Resolution, error) {
	if item.SourceFolderOverride != "" && isDir(item.SourceFolderOverride) {
		return l.searchOverrideFolder(item)
	}

	source := strings.TrimSpace(item.Source)
	if isDir(source) {
		return l.scanDirectory(source)
	}

	if isFile(source) {
		return Resolution{Origin: OriginLocalFile, Path: source}, nil
	}

	return Resolution{Origin: OriginRemote, Path: source}, nil
}

// searchOverrideFolder matches direct entries of the override folder by hint, then identifier
func (l *Locator) searchOverrideFolder(item types.WorkItem) (Resolution, error) {
	entries, err := os.ReadDir(item.SourceFolderOverride)
	if err != nil {
		return Resolution{}, types.NewError(types.ErrIO, "error accessing source folder", err)
	}

	hint := strings.TrimSpace(item.LookupHint)
	identifier := strings.TrimSpace(item.Identifier)

	searchTerm := identifier
	if hint != "" {
		searchTerm = hint
		if match := firstMatch(item.SourceFolderOverride, entries, hint); match != "" {
			logging.DebugLog("Matched %s in source folder using filename hint %q", match, hint)
			return Resolution{Origin: OriginOverrideFolder, Path: match, Candidates: 1}, nil
		}
	}

	if identifier != "" {
		if match := firstMatch(item.SourceFolderOverride, entries, identifier); match != "" {
			logging.DebugLog("Matched %s in source folder using identifier %q", match, identifier)
			return Resolution{Origin: OriginOverrideFolder, Path: match, Candidates: 1}, nil
		}
	}

	return Resolution{}, types.Errorf(types.ErrNotFound,
		"no files matching %q found in source folder %s", searchTerm, item.SourceFolderOverride)
}

// scanDirectory picks the first image file among the direct entries of dir
func (l *Locator) scanDirectory(dir string) (Resolution, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Resolution{}, types.NewError(types.ErrIO, "error accessing directory", err)
	}

	var first string
	count := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsImageFile(entry.Name()) {
			continue
		}
		if first == "" {
			first = filepath.Join(dir, entry.Name())
		}
		count++
	}

	if first == "" {
		return Resolution{}, types.Errorf(types.ErrNotFound, "no image files found in directory %s", dir)
	}
	return Resolution{Origin: OriginDirectory, Path: first, Candidates: count}, nil
}

// ReadLocal reads a resolved local file into memory
func (l *Locator) ReadLocal(r Resolution) ([]byte, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, types.NewError(types.ErrIO, fmt.Sprintf("error copying file %s", r.Path), err)
	}
	return data, nil
}

func firstMatch(dir string, entries []os.DirEntry, term string) string {
	term = strings.ToLower(term)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if strings.Contains(strings.ToLower(entry.Name()), term) {
			return filepath.Join(dir, entry.Name())
		}
	}
	return ""
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
