package locator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestResolveOverrideFolderTakesPrecedence(t *testing.T) {
	override := t.TempDir()
	writeFile(t, override, "other.jpg", "x")
	want := writeFile(t, override, "Widget-ABC123-front.PNG", "x")

	localSource := writeFile(t, t.TempDir(), "source.jpg", "y")

	for _, source := range []string{"https://example.com/a.jpg", localSource} {
		item := types.WorkItem{
			Source:               source,
			Identifier:           "ABC123",
			SourceFolderOverride: override,
			LookupHint:           "abc123-FRONT",
		}
		res, err := New().Resolve(item)
		require.NoError(t, err)
		assert.Equal(t, OriginOverrideFolder, res.Origin)
		assert.Equal(t, want, res.Path)
		assert.True(t, res.IsLocal())
	}
}

func TestResolveOverrideFolderFallsBackToIdentifier(t *testing.T) {
	override := t.TempDir()
	want := writeFile(t, override, "xyz 789.jpg", "x")

	item := types.WorkItem{Identifier: "  XYZ 789 ", SourceFolderOverride: override}
	res, err := New().Resolve(item)
	require.NoError(t, err)
	assert.Equal(t, want, res.Path)

	item.LookupHint = "   "
	res, err = New().Resolve(item)
	require.NoError(t, err)
	assert.Equal(t, want, res.Path)
}

func TestResolveOverrideFolderNotFoundNamesSearchTerm(t *testing.T) {
	override := t.TempDir()
	writeFile(t, override, "unrelated.jpg", "x")
	require.NoError(t, os.Mkdir(filepath.Join(override, "hint-dir"), 0755))

	_, err := New().Resolve(types.WorkItem{
		Identifier:           "ABC",
		SourceFolderOverride: override,
		LookupHint:           "hint",
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.KindOf(err))
	assert.Contains(t, err.Error(), `"hint"`)
}

func TestResolveMissingOverrideFolderIsIgnored(t *testing.T) {
	res, err := New().Resolve(types.WorkItem{
		Source:               "https://example.com/a.jpg",
		SourceFolderOverride: filepath.Join(t.TempDir(), "missing"),
	})
	require.NoError(t, err)
	assert.Equal(t, OriginRemote, res.Origin)
}

func TestResolveDirectoryScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "x")
	writeFile(t, dir, "photo.JPEG", "x")
	writeFile(t, dir, "second.png", "x")

	res, err := New().Resolve(types.WorkItem{Source: dir})
	require.NoError(t, err)
	assert.Equal(t, OriginDirectory, res.Origin)
	assert.Equal(t, filepath.Join(dir, "photo.JPEG"), res.Path)
	assert.Equal(t, 2, res.Candidates)
	assert.Contains(t, res.Message(), "2 images found")
}

func TestResolveDirectoryWithoutImages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.md", "x")

	_, err := New().Resolve(types.WorkItem{Source: dir})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.KindOf(err))
}

func TestResolveLocalFileAndRead(t *testing.T) {
	path := writeFile(t, t.TempDir(), "datasheet.pdf", "%PDF-1.4")

	l := New()
	res, err := l.Resolve(types.WorkItem{Source: path})
	require.NoError(t, err)
	assert.Equal(t, OriginLocalFile, res.Origin)

	data, err := l.ReadLocal(res)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestResolveRemote(t *testing.T) {
	res, err := New().Resolve(types.WorkItem{Source: " https://cdn.example.com/img/1.png "})
	require.NoError(t, err)
	assert.Equal(t, OriginRemote, res.Origin)
	assert.Equal(t, "https://cdn.example.com/img/1.png", res.Path)
	assert.False(t, res.IsLocal())
}

func TestReadLocalMissingFileIsIOError(t *testing.T) {
	_, err := New().ReadLocal(Resolution{Origin: OriginLocalFile, Path: filepath.Join(t.TempDir(), "gone")})
	require.Error(t, err)
	assert.Equal(t, types.ErrIO, types.KindOf(err))
}
