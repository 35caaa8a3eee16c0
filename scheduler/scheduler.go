// Package scheduler runs the per-item acquisition pipeline over a work list in bounded batches.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/w00dy1981/DigitalAssetsDownloader/fetcher"
	"github.com/w00dy1981/DigitalAssetsDownloader/imageprocessor"
	"github.com/w00dy1981/DigitalAssetsDownloader/locator"
	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
	"github.com/w00dy1981/DigitalAssetsDownloader/signalhandler"
	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

const (
	defaultConcurrency = 5
	localContentType   = "local_file"
)

// Scheduler coordinates locating, fetching, normalizing and writing work items.
// A Scheduler is meant for a single Run.
type Scheduler struct {
	locator    Resolver
	fetcher    Downloader
	normalizer ImageNormalizer
	background BackgroundRemover
	cancelled  atomic.Bool
}

// New creates a Scheduler; background may be nil to skip background processing
func New(resolver Resolver, downloader Downloader, normalizer ImageNormalizer, background BackgroundRemover) *Scheduler {
	return &Scheduler{
		locator:    resolver,
		fetcher:    downloader,
		normalizer: normalizer,
		background: background,
	}
}

// Cancel stops new submissions; in-flight items run to completion
func (s *Scheduler) Cancel() {
	if !s.cancelled.Swap(true) {
		logging.LogInfo("Cancellation requested, waiting for in-flight downloads")
	}
}

// Cancelled reports whether Cancel was called
func (s *Scheduler) Cancelled() bool {
	return s.cancelled.Load()
}

// BatchSize returns min(10, 2*concurrency)
func BatchSize(concurrency int) int {
	return min(MaxBatchSize, 2*concurrency)
}

// partition splits n items into consecutive [start, end) batches
func partition(n, size int) [][2]int {
	var batches [][2]int
	for start := 0; start < n; start += size {
		batches = append(batches, [2]int{start, min(start+size, n)})
	}
	return batches
}

func (o RunOptions) withDefaults() RunOptions {
	if o.Concurrency == 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.Concurrency < signalhandler.MinWorkers {
		o.Concurrency = signalhandler.MinWorkers
	}
	if o.Concurrency > signalhandler.MaxWorkers {
		o.Concurrency = signalhandler.MaxWorkers
	}
	if o.BatchPause == 0 {
		o.BatchPause = DefaultBatchPause
	}
	return o
}

// Run processes items and returns one result per started item, ordered by submission index.
// Items sharing a destination path are dropped before scheduling. Cancelling ctx has the
// same effect as Cancel.
func (s *Scheduler) Run(ctx context.Context, items []types.WorkItem, opts RunOptions) []types.ItemResult {
	opts = opts.withDefaults()
	unique := Deduplicate(items)

	stop := context.AfterFunc(ctx, s.Cancel)
	defer stop()
	if ctx.Err() != nil {
		s.Cancel()
	}

	// in-flight items are allowed to finish after cancellation
	itemCtx := context.WithoutCancel(ctx)

	tracker := NewProgressTracker(len(unique), opts.OnProgress)
	if opts.ProgressOutput != nil {
		tracker.StartDisplay(opts.ProgressOutput)
	}
	defer tracker.Stop()

	slots := make([]*types.ItemResult, len(unique))
	for n, batch := range partition(len(unique), BatchSize(opts.Concurrency)) {
		if s.Cancelled() {
			break
		}
		if n > 0 && opts.BatchPause > 0 {
			time.Sleep(opts.BatchPause)
		}

		g := new(errgroup.Group)
		g.SetLimit(opts.Concurrency)
		for i := batch[0]; i < batch[1]; i++ {
			if s.Cancelled() {
				break
			}
			index, item := i, unique[i]
			g.Go(func() error {
				// a slot may free up only after cancellation
				if s.Cancelled() {
					return nil
				}
				result := s.processItem(itemCtx, item)
				slots[index] = &types.ItemResult{Index: index, Item: item, Result: result}
				tracker.Record(item, result)
				return nil
			})
		}
		g.Wait()
	}

	results := make([]types.ItemResult, 0, len(unique))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}

	if opts.OnFinished != nil {
		opts.OnFinished(results)
	}
	return results
}

// processItem runs the pipeline for one item; every outcome, including panics, becomes a FetchResult
func (s *Scheduler) processItem(ctx context.Context, item types.WorkItem) (result types.FetchResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogError("Panic while processing %s: %v", item.Identifier, r)
			result = types.Failed(0, "", types.Errorf(types.ErrUnexpected, "unexpected error: %v", r))
		}
	}()

	res, err := s.locator.Resolve(item)
	if err != nil {
		return types.Failed(0, "", err)
	}

	if res.IsLocal() {
		return s.copyLocal(item, res)
	}
	return s.download(ctx, item, res.Path)
}

// copyLocal reads a resolved local file and writes it to the destination
func (s *Scheduler) copyLocal(item types.WorkItem, res locator.Resolution) types.FetchResult {
	data, err := s.locator.ReadLocal(res)
	if err != nil {
		return types.Failed(0, "", err)
	}

	contentType := localContentType
	applied := false
	if !item.IsDocument() && imageprocessor.IsImageContentType(imageprocessor.ContentTypeForPath(res.Path)) {
		data, contentType, applied, err = s.prepareImage(data, contentType)
		if err != nil {
			return types.Failed(0, "", err)
		}
	}

	if err := writeFileAtomic(item.DestinationPath, data); err != nil {
		return types.Failed(0, "", err)
	}

	logging.DebugLog("Copied %s to %s (%s)", res.Path, item.DestinationPath, res.Origin)
	return types.FetchResult{
		Succeeded:         true,
		HTTPStatus:        200,
		ContentType:       contentType,
		ByteSize:          int64(len(data)),
		Message:           res.Message(),
		BackgroundApplied: applied,
	}
}

// download fetches a remote source and writes it to the destination
func (s *Scheduler) download(ctx context.Context, item types.WorkItem, url string) types.FetchResult {
	resp, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return types.Failed(fetcher.StatusCode(err), "", err)
	}

	data := resp.Body
	contentType := resp.ContentType
	applied := false
	if !item.IsDocument() && imageprocessor.IsImageContentType(resp.ContentType) {
		data, contentType, applied, err = s.prepareImage(data, contentType)
		if err != nil {
			return types.Failed(resp.StatusCode, resp.ContentType, err)
		}
	}

	if err := writeFileAtomic(item.DestinationPath, data); err != nil {
		return types.Failed(resp.StatusCode, contentType, err)
	}

	return types.FetchResult{
		Succeeded:         true,
		HTTPStatus:        resp.StatusCode,
		ContentType:       contentType,
		ByteSize:          int64(len(data)),
		Message:           "Success",
		BackgroundApplied: applied,
	}
}

// prepareImage normalizes image bytes and runs the background pipeline when configured.
// The content type gains the processed suffix whenever the background pipeline ran.
func (s *Scheduler) prepareImage(data []byte, contentType string) ([]byte, string, bool, error) {
	normalized, err := s.normalizer.Normalize(data)
	if err != nil {
		return nil, contentType, false, err
	}
	if s.background == nil {
		return normalized, contentType, false, nil
	}

	outcome := s.background.Process(normalized)
	return outcome.Bytes(), contentType + types.ProcessedSuffix, outcome.Applied, nil
}
