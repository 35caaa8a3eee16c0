// Package manifest turns spreadsheet rows into deduplicated work items.
package manifest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
	"github.com/w00dy1981/DigitalAssetsDownloader/types"
	"github.com/w00dy1981/DigitalAssetsDownloader/utils"
)

// firstDataRow is the spreadsheet row number of the first row below the header
const firstDataRow = 2

// Table is a loaded sheet: a header row and the data rows padded to its width
type Table struct {
	Headers []string
	Rows    [][]string
	index   map[string]int
}

// Columns maps spreadsheet headers onto item fields
type Columns struct {
	Identifier   string   `yaml:"identifier"`
	Images       []string `yaml:"images"`
	PDF          string   `yaml:"pdf"`
	FilenameHint string   `yaml:"filename_hint"`
}

// Options controls how rows become work items
type Options struct {
	Columns            Columns
	ImageFolder        string
	PDFFolder          string
	ImageDisplayFolder string
	PDFDisplayFolder   string
	SourceImageFolder  string
}

// SheetNames lists the sheets of an xlsx workbook; csv files have a single unnamed sheet
func SheetNames(path string) ([]string, error) {
	if isCSV(path) {
		return []string{""}, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("error loading Excel file: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// Load reads a manifest; sheet selects the xlsx sheet and defaults to the first one
func Load(path, sheet string) (*Table, error) {
	var records [][]string
	var err error
	if isCSV(path) {
		records, err = readCSV(path)
	} else {
		records, err = readSheet(path, sheet)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("manifest %s is empty", path)
	}
	return newTable(records), nil
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error loading CSV file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV file: %w", err)
	}
	return records, nil
}

func readSheet(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("error loading Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("error loading sheet %q: %w", sheet, err)
	}
	logging.DebugLog("Loaded sheet %q with %d rows from %s", sheet, len(rows), path)
	return rows, nil
}

func newTable(records [][]string) *Table {
	headers := make([]string, len(records[0]))
	index := make(map[string]int, len(headers))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
		if _, dup := index[headers[i]]; !dup {
			index[headers[i]] = i
		}
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]string, len(headers))
		copy(row, rec)
		rows = append(rows, row)
	}
	return &Table{Headers: headers, Rows: rows, index: index}
}

// HasColumn reports whether the header row contains name
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Cell returns the trimmed value of column name in data row i, or ""
func (t *Table) Cell(i int, name string) string {
	col, ok := t.index[name]
	if !ok || i < 0 || i >= len(t.Rows) {
		return ""
	}
	return strings.TrimSpace(t.Rows[i][col])
}

// Validate checks the column mapping against the header row
func (t *Table) Validate(cols Columns) error {
	if cols.Identifier == "" {
		return fmt.Errorf("please select a part number column")
	}
	if len(cols.Images) == 0 && cols.PDF == "" {
		return fmt.Errorf("please select at least one image or PDF column")
	}

	var missing []string
	for _, name := range append([]string{cols.Identifier, cols.PDF, cols.FilenameHint}, cols.Images...) {
		if name != "" && !t.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("columns not found in manifest: %s", strings.Join(missing, ", "))
	}
	return nil
}

// BuildWorkItems maps every row to image and PDF work items named after the sanitized identifier.
// Items whose destination was already produced are dropped; the first one wins.
func BuildWorkItems(t *Table, opts Options) ([]types.WorkItem, error) {
	if err := t.Validate(opts.Columns); err != nil {
		return nil, err
	}

	var items []types.WorkItem
	seen := make(map[string]bool)
	add := func(item types.WorkItem) {
		key := filepath.Clean(item.DestinationPath)
		if seen[key] {
			return
		}
		seen[key] = true
		items = append(items, item)
	}

	for i := range t.Rows {
		identifier := t.Cell(i, opts.Columns.Identifier)
		safe := utils.SanitizeFilename(identifier)
		if safe == "" {
			logging.LogWarning("Skipping row %d: empty part number", i+firstDataRow)
			continue
		}
		hint := t.Cell(i, opts.Columns.FilenameHint)

		if opts.ImageFolder != "" {
			fileName := safe + ".jpg"
			for _, col := range opts.Columns.Images {
				source := t.Cell(i, col)
				if source == "" {
					continue
				}
				add(types.WorkItem{
					Source:               source,
					DestinationPath:      filepath.Join(opts.ImageFolder, fileName),
					Kind:                 types.KindImage,
					Identifier:           identifier,
					SourceFolderOverride: opts.SourceImageFolder,
					LookupHint:           hint,
					RowIndex:             i + firstDataRow,
					Column:               col,
					DisplayPath:          joinDisplayPath(opts.ImageDisplayFolder, fileName),
				})
			}
		}

		if opts.PDFFolder != "" && opts.Columns.PDF != "" {
			if source := t.Cell(i, opts.Columns.PDF); source != "" {
				fileName := safe + ".pdf"
				add(types.WorkItem{
					Source:          source,
					DestinationPath: filepath.Join(opts.PDFFolder, fileName),
					Kind:            types.KindDocument,
					Identifier:      identifier,
					RowIndex:        i + firstDataRow,
					Column:          opts.Columns.PDF,
					DisplayPath:     joinDisplayPath(opts.PDFDisplayFolder, fileName),
				})
			}
		}
	}

	return items, nil
}

// joinDisplayPath joins a caller-facing folder (often a Windows share) with a file name
func joinDisplayPath(folder, fileName string) string {
	if folder == "" {
		return ""
	}
	sep := "/"
	if strings.Contains(folder, `\`) {
		sep = `\`
	}
	return strings.TrimRight(folder, `\/`) + sep + fileName
}
