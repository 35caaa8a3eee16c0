package main

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/w00dy1981/DigitalAssetsDownloader/auditlog"
	"github.com/w00dy1981/DigitalAssetsDownloader/config"
	"github.com/w00dy1981/DigitalAssetsDownloader/database"
	"github.com/w00dy1981/DigitalAssetsDownloader/fetcher"
	"github.com/w00dy1981/DigitalAssetsDownloader/imageprocessor"
	"github.com/w00dy1981/DigitalAssetsDownloader/locator"
	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
	"github.com/w00dy1981/DigitalAssetsDownloader/manifest"
	"github.com/w00dy1981/DigitalAssetsDownloader/scheduler"
	"github.com/w00dy1981/DigitalAssetsDownloader/signalhandler"
	"github.com/w00dy1981/DigitalAssetsDownloader/utils"
)

var (
	envFile       string
	useLastConfig bool
	saveConfig    bool

	manifestPath  string
	sheetName     string
	idColumn      string
	imageColumns  []string
	pdfColumn     string
	hintColumn    string
	imageFolder   string
	pdfFolder     string
	sourceFolder  string
	concurrency   int
	background    bool
	bgMethod      string
	bgQuality     int
	bgThreshold   int
	dbPath        string
	logFilePath   string
	debugMode     bool
)

var (
	reportDBPath      string
	reportSummaryOnly bool
)

var rootCmd = &cobra.Command{
	Use:   "digital-asset-downloader [settings.yaml]",
	Short: "Bulk download images and PDFs listed in a spreadsheet",
	Long: `Downloads or copies the assets referenced by a spreadsheet, renames them after the
part number, optionally whitens image backgrounds and writes a CSV download log.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runDownload,
}

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Summarize a previous run from the audit database",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&envFile, "env", ".env", "Path to a .env file with ASSETDL_* overrides")
	f.BoolVar(&useLastConfig, "last", false, "Load the last saved settings")
	f.BoolVar(&saveConfig, "save-config", false, "Save the effective settings for --last")

	f.StringVar(&manifestPath, "manifest", "", "Spreadsheet to read (.xlsx or .csv)")
	f.StringVar(&sheetName, "sheet", "", "Sheet name (defaults to the first sheet)")
	f.StringVar(&idColumn, "id-column", "", "Column holding the part number")
	f.StringSliceVar(&imageColumns, "image-column", nil, "Column(s) holding image URLs or paths")
	f.StringVar(&pdfColumn, "pdf-column", "", "Column holding PDF URLs or paths")
	f.StringVar(&hintColumn, "hint-column", "", "Column holding a filename hint for local lookups")
	f.StringVar(&imageFolder, "image-folder", "", "Destination folder for images")
	f.StringVar(&pdfFolder, "pdf-folder", "", "Destination folder for PDFs")
	f.StringVar(&sourceFolder, "source-folder", "", "Folder searched for local images before downloading")
	f.IntVar(&concurrency, "concurrency", config.DefaultConcurrency, "Concurrent downloads (1-20, 0 picks one for this machine)")
	f.BoolVar(&background, "background", false, "Replace image backgrounds with white")
	f.StringVar(&bgMethod, "bg-method", string(imageprocessor.MethodSmartDetect), "Background method: smart_detect, ai_removal, color_replace, edge_detection")
	f.IntVar(&bgQuality, "bg-quality", imageprocessor.DefaultQuality, "JPEG quality of processed images (60-100)")
	f.IntVar(&bgThreshold, "bg-threshold", imageprocessor.DefaultEdgeThreshold, "Edge detection threshold (10-100)")
	f.StringVar(&dbPath, "database", "", "Audit database path")
	f.StringVar(&logFilePath, "logfile", "", "Debug log file")
	f.BoolVar(&debugMode, "debug", false, "Enable debug logging")

	reportCmd.Flags().StringVar(&reportDBPath, "database", utils.GetDefaultDatabasePath(), "Audit database path")
	reportCmd.Flags().BoolVar(&reportSummaryOnly, "summary", false, "Only print the summary")
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadSettings layers defaults, the settings file, the environment and finally explicit flags
func loadSettings(cmd *cobra.Command, args []string) (*config.Settings, error) {
	settingsPath := ""
	if len(args) > 0 {
		settingsPath = args[0]
	} else if useLastConfig {
		settingsPath = config.LastConfigPath()
	}

	settings, err := config.Load(settingsPath, envFile)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("manifest") {
		settings.Manifest = manifestPath
	}
	if changed("sheet") {
		settings.Sheet = sheetName
	}
	if changed("id-column") {
		settings.Columns.Identifier = idColumn
	}
	if changed("image-column") {
		settings.Columns.Images = imageColumns
	}
	if changed("pdf-column") {
		settings.Columns.PDF = pdfColumn
	}
	if changed("hint-column") {
		settings.Columns.FilenameHint = hintColumn
	}
	if changed("image-folder") {
		settings.ImageFolder = imageFolder
	}
	if changed("pdf-folder") {
		settings.PDFFolder = pdfFolder
	}
	if changed("source-folder") {
		settings.SourceImageFolder = sourceFolder
	}
	if changed("concurrency") {
		// 0 lets config.Normalize pick a value for this machine
		if concurrency != 0 {
			if _, err := utils.ParseIntInRange("concurrency", fmt.Sprint(concurrency), signalhandler.MinWorkers, signalhandler.MaxWorkers); err != nil {
				return nil, err
			}
		}
		settings.Concurrency = concurrency
	}
	if changed("background") {
		settings.Background.Enabled = background
	}
	if changed("bg-method") {
		settings.Background.Method = imageprocessor.Method(bgMethod)
	}
	if changed("bg-quality") {
		settings.Background.Quality = bgQuality
	}
	if changed("bg-threshold") {
		settings.Background.EdgeThreshold = bgThreshold
	}
	if changed("database") {
		settings.Database = dbPath
	}
	if changed("logfile") {
		settings.LogFile = logFilePath
	}
	if changed("debug") {
		settings.Debug = debugMode
	}

	settings.Normalize()
	return settings, settings.Validate()
}

// openDatabase initializes the audit database, retrying while another process holds the lock
func openDatabase(path string) (*sql.DB, error) {
	const maxRetries = 3
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := database.InitDatabase(path)
		if err == nil {
			return db, nil
		}
		lastErr = err
		if i < maxRetries-1 {
			logging.LogWarning("Error initializing database (attempt %d/%d): %v - retrying...", i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	return nil, fmt.Errorf("error initializing database after %d attempts: %w", maxRetries, lastErr)
}

func runDownload(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd, args)
	if err != nil {
		return err
	}

	if settings.Debug {
		if err := logging.SetupLogger(settings.LogFile); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", settings.LogFile)
		}
		defer logging.CloseLogger()
	}

	table, err := manifest.Load(settings.Manifest, settings.Sheet)
	if err != nil {
		return err
	}
	items, err := manifest.BuildWorkItems(table, settings.ManifestOptions())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No downloadable items found in the manifest.")
		return nil
	}

	db, err := openDatabase(settings.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	sink, err := auditlog.New(auditlog.Options{
		Dir:               settings.LogDir(),
		BackgroundEnabled: settings.Background.Enabled,
		DB:                db,
	})
	if err != nil {
		return err
	}
	defer sink.Close()

	// a nil *BackgroundProcessor must not end up inside the interface
	var remover scheduler.BackgroundRemover
	var processor *imageprocessor.BackgroundProcessor
	if settings.Background.Enabled {
		processor, err = imageprocessor.NewBackgroundProcessor(settings.Background.BackgroundProcessingConfig)
		if err != nil {
			return err
		}
		remover = processor
	}

	s := scheduler.New(locator.New(), fetcher.New(), imageprocessor.NewNormalizer(), remover)
	stopSignals := signalhandler.SetupHandler(s.Cancel)
	defer stopSignals()

	unique := scheduler.Deduplicate(items)
	if err := sink.StartRun(settings.Manifest, len(unique)); err != nil {
		logging.LogError("Failed to register run: %v", err)
	}

	scheduler.PrintStartupInfo(os.Stdout, len(unique), len(items), settings.Concurrency)
	if processor != nil {
		cfg := processor.Config()
		fmt.Printf("Background processing: %s (quality %d)\n", cfg.Method, cfg.Quality)
	}

	startTime := time.Now()
	results := s.Run(cmd.Context(), unique, scheduler.RunOptions{
		Concurrency:    settings.Concurrency,
		OnProgress:     sink.OnProgress,
		ProgressOutput: os.Stdout,
	})
	scheduler.PrintCompletionStats(os.Stdout, results, len(unique), startTime, s.Cancelled())

	stats, err := sink.Finish(s.Cancelled())
	if err != nil {
		logging.LogError("Failed to finalize run: %v", err)
	} else if stats != nil {
		fmt.Printf("Downloaded: %s\n", formatBytes(stats.TotalBytes))
		if settings.Background.Enabled {
			fmt.Printf("Backgrounds processed: %d\n", stats.BackgroundApplied)
		}
	}
	fmt.Printf("Download log: %s\n", sink.Path())
	fmt.Printf("Run ID: %s\n", sink.RunID())

	if saveConfig {
		path := config.LastConfigPath()
		if err := settings.Save(path); err != nil {
			logging.LogWarning("Failed to save settings: %v", err)
		} else {
			fmt.Printf("Settings saved to %s\n", path)
		}
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(reportDBPath); os.IsNotExist(err) {
		return fmt.Errorf("database does not exist: %s. Run a download first", reportDBPath)
	}

	db, err := database.InitDatabase(reportDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runID := ""
	if len(args) > 0 {
		runID = args[0]
	} else if runID, err = database.LatestRunID(db); err != nil {
		return err
	}
	if runID == "" {
		fmt.Println("No runs recorded.")
		return nil
	}

	stats, err := database.GetRunStats(db, runID)
	if err != nil {
		return err
	}

	fmt.Printf("Run: %s\n", stats.RunID)
	if stats.Cancelled {
		fmt.Println("Status: cancelled")
	}
	fmt.Printf("- Items processed: %d/%d\n", stats.Recorded, stats.TotalItems)
	fmt.Printf("- Successful: %d\n", stats.Succeeded)
	fmt.Printf("- Failed: %d\n", stats.Failed)
	fmt.Printf("- Downloaded: %s\n", formatBytes(stats.TotalBytes))
	fmt.Printf("- Backgrounds processed: %d\n", stats.BackgroundApplied)

	if reportSummaryOnly || stats.Failed == 0 {
		return nil
	}

	failures, err := database.ListFailures(db, runID)
	if err != nil {
		return err
	}
	fmt.Println("\nFailures:")
	for _, f := range failures {
		fmt.Printf("Row %d  %s  %s\n", f.RowIndex, f.Identifier, f.Source)
		fmt.Printf("   %s (HTTP %d): %s\n", f.ErrorKind, f.HTTPStatus, f.Message)
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
