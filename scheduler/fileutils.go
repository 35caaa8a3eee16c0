package scheduler

import (
	"os"
	"path/filepath"

	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

// Deduplicate drops items whose cleaned destination path was already seen; first occurrence wins
func Deduplicate(items []types.WorkItem) []types.WorkItem {
	seen := make(map[string]bool, len(items))
	unique := make([]types.WorkItem, 0, len(items))
	for _, item := range items {
		key := filepath.Clean(item.DestinationPath)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, item)
	}
	return unique
}

// writeFileAtomic writes data to a temp file in the destination directory and renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return types.NewError(types.ErrIO, "error creating directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return types.NewError(types.ErrIO, "error creating file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return types.NewError(types.ErrIO, "error writing file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return types.NewError(types.ErrIO, "error writing file", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return types.NewError(types.ErrIO, "error writing file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return types.NewError(types.ErrIO, "error writing file", err)
	}
	return nil
}
