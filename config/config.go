// Package config loads run settings from a YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/w00dy1981/DigitalAssetsDownloader/imageprocessor"
	"github.com/w00dy1981/DigitalAssetsDownloader/manifest"
	"github.com/w00dy1981/DigitalAssetsDownloader/signalhandler"
	"github.com/w00dy1981/DigitalAssetsDownloader/utils"
)

const (
	DefaultConcurrency = 5
	DefaultLogFile     = "digital_asset_downloader.log"
	lastConfigFile     = "last_config.yaml"
)

// BackgroundSettings enables and tunes background processing
type BackgroundSettings struct {
	Enabled                                   bool `yaml:"enabled"`
	imageprocessor.BackgroundProcessingConfig `yaml:",inline"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	Manifest           string             `yaml:"manifest"`
	Sheet              string             `yaml:"sheet"`
	Columns            manifest.Columns   `yaml:"columns"`
	ImageFolder        string             `yaml:"image_folder"`
	PDFFolder          string             `yaml:"pdf_folder"`
	ImageDisplayFolder string             `yaml:"image_display_folder"`
	PDFDisplayFolder   string             `yaml:"pdf_display_folder"`
	SourceImageFolder  string             `yaml:"source_image_folder"`
	Concurrency        int                `yaml:"concurrency"`
	Background         BackgroundSettings `yaml:"background"`
	Database           string             `yaml:"database"`
	LogFile            string             `yaml:"log_file"`
	Debug              bool               `yaml:"debug"`
}

// Default returns the settings used when nothing is configured
func Default() *Settings {
	return &Settings{
		Concurrency: DefaultConcurrency,
		Background: BackgroundSettings{
			BackgroundProcessingConfig: imageprocessor.DefaultBackgroundConfig(),
		},
		Database: utils.GetDefaultDatabasePath(),
		LogFile:  DefaultLogFile,
	}
}

// Load reads settingsPath (optional) over the defaults, then applies .env and environment overrides
func Load(settingsPath, envFilePath string) (*Settings, error) {
	s := Default()

	if settingsPath != "" {
		data, err := os.ReadFile(settingsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse settings file: %w", err)
		}
	}

	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	s.applyEnv()
	s.Normalize()
	return s, nil
}

// applyEnv overrides settings with ASSETDL_* variables
func (s *Settings) applyEnv() {
	s.Manifest = getEnv("ASSETDL_MANIFEST", s.Manifest)
	s.Sheet = getEnv("ASSETDL_SHEET", s.Sheet)
	s.ImageFolder = getEnv("ASSETDL_IMAGE_FOLDER", s.ImageFolder)
	s.PDFFolder = getEnv("ASSETDL_PDF_FOLDER", s.PDFFolder)
	s.ImageDisplayFolder = getEnv("ASSETDL_IMAGE_DISPLAY_FOLDER", s.ImageDisplayFolder)
	s.PDFDisplayFolder = getEnv("ASSETDL_PDF_DISPLAY_FOLDER", s.PDFDisplayFolder)
	s.SourceImageFolder = getEnv("ASSETDL_SOURCE_IMAGE_FOLDER", s.SourceImageFolder)
	s.Concurrency = getEnvAsInt("ASSETDL_CONCURRENCY", s.Concurrency)
	s.Background.Enabled = getEnvAsBool("ASSETDL_BACKGROUND", s.Background.Enabled)
	s.Background.Method = imageprocessor.Method(getEnv("ASSETDL_BG_METHOD", string(s.Background.Method)))
	s.Background.Quality = getEnvAsInt("ASSETDL_BG_QUALITY", s.Background.Quality)
	s.Background.EdgeThreshold = getEnvAsInt("ASSETDL_BG_THRESHOLD", s.Background.EdgeThreshold)
	s.Database = getEnv("ASSETDL_DATABASE", s.Database)
	s.LogFile = getEnv("ASSETDL_LOGFILE", s.LogFile)
	s.Debug = getEnvAsBool("ASSETDL_DEBUG", s.Debug)
}

// Normalize clamps numeric settings into their valid ranges.
// A concurrency of 0 picks the worker count for this machine.
func (s *Settings) Normalize() {
	if s.Concurrency == 0 {
		s.Concurrency = signalhandler.GetOptimalWorkers()
	}
	s.Concurrency = utils.ClampInt(s.Concurrency, signalhandler.MinWorkers, signalhandler.MaxWorkers)
	s.Background.BackgroundProcessingConfig = s.Background.BackgroundProcessingConfig.Normalize()
}

// Validate reports every problem that would stop a run
func (s *Settings) Validate() error {
	var errs []error

	if s.Manifest == "" {
		errs = append(errs, errors.New("no manifest file selected"))
	} else if _, err := os.Stat(s.Manifest); err != nil {
		errs = append(errs, fmt.Errorf("manifest file not found: %s", s.Manifest))
	}

	if s.Columns.Identifier == "" {
		errs = append(errs, errors.New("please select a part number column"))
	}
	if len(s.Columns.Images) == 0 && s.Columns.PDF == "" {
		errs = append(errs, errors.New("please select at least one image or PDF column"))
	}
	if len(s.Columns.Images) > 0 && s.ImageFolder == "" {
		errs = append(errs, errors.New("image columns selected but no image folder set"))
	}
	if s.Columns.PDF != "" && s.PDFFolder == "" {
		errs = append(errs, errors.New("PDF column selected but no PDF folder set"))
	}
	if s.Background.Enabled {
		if err := s.Background.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ManifestOptions returns the row mapping options for the manifest reader
func (s *Settings) ManifestOptions() manifest.Options {
	return manifest.Options{
		Columns:            s.Columns,
		ImageFolder:        s.ImageFolder,
		PDFFolder:          s.PDFFolder,
		ImageDisplayFolder: s.ImageDisplayFolder,
		PDFDisplayFolder:   s.PDFDisplayFolder,
		SourceImageFolder:  s.SourceImageFolder,
	}
}

// LogDir is where the download log goes: the image folder, else the PDF folder
func (s *Settings) LogDir() string {
	if s.ImageFolder != "" {
		return s.ImageFolder
	}
	if s.PDFFolder != "" {
		return s.PDFFolder
	}
	return "."
}

// LastConfigPath returns the location of the last used settings
func LastConfigPath() string {
	return filepath.Join(utils.GetConfigDir(), lastConfigFile)
}

// Save writes the settings as YAML
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// getEnv returns the environment variable or the default when unset
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns the environment variable as an integer
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool returns the environment variable as a boolean
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}
