package scheduler

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/w00dy1981/DigitalAssetsDownloader/fetcher"
	"github.com/w00dy1981/DigitalAssetsDownloader/imageprocessor"
	"github.com/w00dy1981/DigitalAssetsDownloader/locator"
	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

// DefaultBatchPause is the delay between consecutive batches
const DefaultBatchPause = 100 * time.Millisecond

// MaxBatchSize caps the number of items submitted per batch
const MaxBatchSize = 10

// RunOptions defines the options for a scheduler run
type RunOptions struct {
	Concurrency int
	// BatchPause between batches; zero means DefaultBatchPause, negative disables it
	BatchPause time.Duration
	OnProgress func(types.ProgressEvent)
	OnFinished func([]types.ItemResult)
	// ProgressOutput receives a periodic one-line progress display when set
	ProgressOutput io.Writer
}

// Resolver decides where an item's bytes come from
type Resolver interface {
	Resolve(item types.WorkItem) (locator.Resolution, error)
	ReadLocal(r locator.Resolution) ([]byte, error)
}

// Downloader fetches remote bytes
type Downloader interface {
	Fetch(ctx context.Context, url string) (*fetcher.Response, error)
}

// ImageNormalizer converts image bytes to the canonical JPEG form
type ImageNormalizer interface {
	Normalize(raw []byte) ([]byte, error)
}

// BackgroundRemover is the fail-open background pipeline
type BackgroundRemover interface {
	Process(data []byte) imageprocessor.Outcome
}

// ProgressTracker tracks progress of a scheduler run
type ProgressTracker struct {
	processed  int
	succeeded  int
	failed     int
	total      int
	onProgress func(types.ProgressEvent)
	ticker     *time.Ticker
	done       chan bool
	stopOnce   sync.Once
	mu         sync.Mutex
}
