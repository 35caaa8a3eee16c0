// Package auditlog writes one CSV row per processed item and mirrors it into the sqlite store.
package auditlog

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/w00dy1981/DigitalAssetsDownloader/database"
	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

// DefaultDisplayFolder prefixes the display path when the item carries none
const DefaultDisplayFolder = `Path\To\Network\Images`

// Header is the column layout of the download log
var Header = []string{
	"Row", "Product Code", "URL", "Status", "HTTP Status", "Content-Type",
	"File Size (Bytes)", "Message", "Local File Path", "Photo File Path", "Background Processed",
}

// Options configures a Sink
type Options struct {
	// Dir receives the CSV log
	Dir string
	// BackgroundEnabled marks whether the run had background processing configured
	BackgroundEnabled bool
	// DB is an optional sqlite mirror opened with database.InitDatabase
	DB    *sql.DB
	RunID string
	Now   func() time.Time
}

// Sink is the single writer of the download log; it is safe for concurrent use
type Sink struct {
	mu      sync.Mutex
	file    *os.File
	writer  *csv.Writer
	path    string
	db      *sql.DB
	runID   string
	bg      bool
	written int
}

// FileName returns the log file name for a start time
func FileName(t time.Time) string {
	return fmt.Sprintf("DownloadLog_%s.csv", t.Format("20060102_150405"))
}

// New creates the CSV log with its header and registers the run in the database
func New(opts Options) (*Sink, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(opts.Dir, FileName(now()))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create download log: %w", err)
	}

	s := &Sink{
		file:   f,
		writer: csv.NewWriter(f),
		path:   path,
		db:     opts.DB,
		runID:  runID,
		bg:     opts.BackgroundEnabled,
	}

	if err := s.writer.Write(Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write log header: %w", err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write log header: %w", err)
	}

	logging.LogInfo("Download log: %s (run %s)", path, runID)
	return s, nil
}

// StartRun registers the run in the database mirror
func (s *Sink) StartRun(manifest string, totalItems int) error {
	if s.db == nil {
		return nil
	}
	return database.StartRun(s.db, s.runID, manifest, totalItems)
}

// Path returns the CSV log path
func (s *Sink) Path() string {
	return s.path
}

// RunID returns the run identifier used for the database mirror
func (s *Sink) RunID() string {
	return s.runID
}

// Written returns the number of rows written so far
func (s *Sink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// OnProgress records the item carried by a progress event
func (s *Sink) OnProgress(e types.ProgressEvent) {
	if err := s.Record(e.Item, e.Result); err != nil {
		logging.LogError("Error writing to log file: %v", err)
	}
}

// Record appends one row to the CSV log and the database mirror
func (s *Sink) Record(item types.WorkItem, result types.FetchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Write(BuildRow(item, result, s.bg)); err != nil {
		return err
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return err
	}
	s.written++

	if s.db != nil {
		if err := database.StoreFetchResult(s.db, s.runID, item, result); err != nil {
			return err
		}
	}
	return nil
}

// BuildRow renders the log row for one item
func BuildRow(item types.WorkItem, result types.FetchResult, backgroundEnabled bool) []string {
	localPath, displayPath := "", ""
	bgProcessed := "No"

	if result.Succeeded && !item.IsDocument() {
		localPath = item.DestinationPath
		displayPath = item.DisplayPath
		if displayPath == "" {
			displayPath = DefaultDisplayFolder + `\` + filepath.Base(item.DestinationPath)
		}
		if backgroundEnabled && result.BackgroundApplied {
			bgProcessed = "Yes"
		}
	}

	return []string{
		strconv.Itoa(item.RowIndex),
		item.Identifier,
		item.Source,
		result.StatusLabel(),
		strconv.Itoa(result.HTTPStatus),
		result.ContentType,
		strconv.FormatInt(result.ByteSize, 10),
		result.Message,
		localPath,
		displayPath,
		bgProcessed,
	}
}

// Finish marks the run finished in the database mirror
func (s *Sink) Finish(cancelled bool) (*database.RunStats, error) {
	if s.db == nil {
		return nil, nil
	}
	if err := database.FinishRun(s.db, s.runID, cancelled); err != nil {
		return nil, err
	}
	return database.GetRunStats(s.db, s.runID)
}

// Close flushes and closes the CSV log
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
