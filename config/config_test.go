package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w00dy1981/DigitalAssetsDownloader/imageprocessor"
	"github.com/w00dy1981/DigitalAssetsDownloader/manifest"
	"github.com/w00dy1981/DigitalAssetsDownloader/signalhandler"
)

const sampleSettings = `
manifest: parts.xlsx
sheet: Products
columns:
  identifier: Part No
  images: [Main Image, Alt Image]
  pdf: Datasheet
image_folder: /out/images
pdf_folder: /out/pdf
concurrency: 50
background:
  enabled: true
  method: color_replace
  quality: 40
  edge_threshold: 45
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadSettingsFile(t *testing.T) {
	s, err := Load(writeTemp(t, "settings.yaml", sampleSettings), "")
	require.NoError(t, err)

	assert.Equal(t, "parts.xlsx", s.Manifest)
	assert.Equal(t, "Products", s.Sheet)
	assert.Equal(t, []string{"Main Image", "Alt Image"}, s.Columns.Images)
	assert.Equal(t, 20, s.Concurrency)
	assert.True(t, s.Background.Enabled)
	assert.Equal(t, imageprocessor.MethodColorReplace, s.Background.Method)
	assert.Equal(t, imageprocessor.MinQuality, s.Background.Quality)
	assert.Equal(t, 45, s.Background.EdgeThreshold)
	assert.Equal(t, DefaultLogFile, s.LogFile)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ASSETDL_IMAGE_FOLDER", "/env/images")
	t.Setenv("ASSETDL_CONCURRENCY", "8")
	t.Setenv("ASSETDL_BACKGROUND", "false")
	t.Setenv("ASSETDL_BG_QUALITY", "not-a-number")

	s, err := Load(writeTemp(t, "settings.yaml", sampleSettings), "")
	require.NoError(t, err)
	assert.Equal(t, "/env/images", s.ImageFolder)
	assert.Equal(t, 8, s.Concurrency)
	assert.False(t, s.Background.Enabled)
	assert.Equal(t, imageprocessor.MinQuality, s.Background.Quality)
}

func TestDotEnvFile(t *testing.T) {
	envFile := writeTemp(t, ".env", "ASSETDL_PDF_FOLDER=/dotenv/pdf\n")
	t.Cleanup(func() { os.Unsetenv("ASSETDL_PDF_FOLDER") })

	s, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "/dotenv/pdf", s.PDFFolder)

	_, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoadMissingSettingsFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	s := Default()
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no manifest file selected")
	assert.Contains(t, err.Error(), "part number column")

	s.Manifest = writeTemp(t, "parts.csv", "Part No,Image\n")
	s.Columns = manifest.Columns{Identifier: "Part No", Images: []string{"Image"}}
	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image folder")

	s.ImageFolder = t.TempDir()
	assert.NoError(t, s.Validate())

	s.Background.Enabled = true
	s.Background.Method = "magic"
	assert.Error(t, s.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	s, err := Load(writeTemp(t, "settings.yaml", sampleSettings), "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", lastConfigFile)
	require.NoError(t, s.Save(path))

	loaded, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestLogDir(t *testing.T) {
	s := Default()
	assert.Equal(t, ".", s.LogDir())
	s.PDFFolder = "/pdf"
	assert.Equal(t, "/pdf", s.LogDir())
	s.ImageFolder = "/img"
	assert.Equal(t, "/img", s.LogDir())
}

func TestConcurrencyZeroPicksMachineDefault(t *testing.T) {
	t.Setenv("ASSETDL_CONCURRENCY", "0")

	s, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, signalhandler.GetOptimalWorkers(), s.Concurrency)

	s.Concurrency = -3
	s.Normalize()
	assert.Equal(t, signalhandler.MinWorkers, s.Concurrency)
}
