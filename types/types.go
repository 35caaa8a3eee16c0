package types

import "strings"

// AssetKind distinguishes images from documents
type AssetKind string

const (
	KindImage    AssetKind = "image"
	KindDocument AssetKind = "document"
)

// ProcessedSuffix marks a content type whose bytes went through the background pipeline
const ProcessedSuffix = "_processed"

// WorkItem is one requested asset acquisition and its destination
type WorkItem struct {
	Source               string    `json:"source"`
	DestinationPath      string    `json:"destination_path"`
	Kind                 AssetKind `json:"kind"`
	Identifier           string    `json:"identifier"`
	SourceFolderOverride string    `json:"source_folder_override,omitempty"`
	LookupHint           string    `json:"lookup_hint,omitempty"`
	RowIndex             int       `json:"row_index"`
	Column               string    `json:"column,omitempty"`
	DisplayPath          string    `json:"display_path,omitempty"`
}

// IsDocument reports whether the item targets a document destination
func (w WorkItem) IsDocument() bool {
	return w.Kind == KindDocument || strings.HasSuffix(strings.ToLower(w.DestinationPath), ".pdf")
}

// FetchResult holds the outcome of processing one work item
type FetchResult struct {
	Succeeded         bool      `json:"succeeded"`
	HTTPStatus        int       `json:"http_status"`
	ContentType       string    `json:"content_type"`
	ByteSize          int64     `json:"byte_size"`
	Message           string    `json:"message"`
	ErrorKind         ErrorKind `json:"error_kind,omitempty"`
	BackgroundApplied bool      `json:"background_applied"`
}

// Failed builds a failed result; failed results never carry a byte size
func Failed(status int, contentType string, err error) FetchResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return FetchResult{
		Succeeded:   false,
		HTTPStatus:  status,
		ContentType: contentType,
		ByteSize:    0,
		Message:     msg,
		ErrorKind:   KindOf(err),
	}
}

// StatusLabel returns the log label for the result
func (r FetchResult) StatusLabel() string {
	if r.Succeeded {
		return "Success"
	}
	return "Failure"
}

// ItemResult pairs a scheduled item with its outcome
type ItemResult struct {
	Index  int
	Item   WorkItem
	Result FetchResult
}

// ProgressEvent is emitted once per completed item
type ProgressEvent struct {
	ItemsProcessed int
	ItemsTotal     int
	SuccessCount   int
	FailureCount   int
	Item           WorkItem
	Result         FetchResult
}
