package scheduler

import (
	"fmt"
	"io"
	"time"

	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

// NewProgressTracker initializes the progress tracker
func NewProgressTracker(total int, onProgress func(types.ProgressEvent)) *ProgressTracker {
	return &ProgressTracker{
		total:      total,
		onProgress: onProgress,
		done:       make(chan bool),
	}
}

// StartDisplay prints the progress line to w periodically until Stop
func (p *ProgressTracker) StartDisplay(w io.Writer) {
	p.ticker = time.NewTicker(500 * time.Millisecond)
	go p.displayProgress(w)
}

// displayProgress shows the progress periodically
func (p *ProgressTracker) displayProgress(w io.Writer) {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.mu.Lock()
			if p.failed > 0 {
				fmt.Fprintf(w, "\rProgress: %d/%d (Errors: %d)", p.processed, p.total, p.failed)
			} else {
				fmt.Fprintf(w, "\rProgress: %d/%d", p.processed, p.total)
			}
			p.mu.Unlock()
		}
	}
}

// Record counts a completed item and emits its progress event.
// Events are emitted under the tracker lock, so callbacks never overlap.
func (p *ProgressTracker) Record(item types.WorkItem, result types.FetchResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed++
	if result.Succeeded {
		p.succeeded++
	} else {
		p.failed++
	}

	logging.LogItemProcessed(item.Identifier, item.DestinationPath, result.Succeeded, result.Message)

	if p.onProgress != nil {
		p.onProgress(types.ProgressEvent{
			ItemsProcessed: p.processed,
			ItemsTotal:     p.total,
			SuccessCount:   p.succeeded,
			FailureCount:   p.failed,
			Item:           item,
			Result:         result,
		})
	}
}

// Stop ends the progress display
func (p *ProgressTracker) Stop() {
	p.stopOnce.Do(func() {
		if p.ticker == nil {
			return
		}
		p.ticker.Stop()
		p.done <- true
	})
}

// PrintStartupInfo displays information about the run before starting
func PrintStartupInfo(w io.Writer, total, requested, concurrency int) {
	fmt.Fprintf(w, "Starting downloads...\nItems to process: %d", total)
	if requested > total {
		fmt.Fprintf(w, " (%d duplicate destinations skipped)", requested-total)
	}
	fmt.Fprintf(w, "\nConcurrent downloads: %d\n", concurrency)
	logging.DebugLog("Scheduling %d items (%d requested) with %d workers", total, requested, concurrency)
}

// PrintCompletionStats displays statistics after the run
func PrintCompletionStats(w io.Writer, results []types.ItemResult, total int, startTime time.Time, cancelled bool) {
	elapsed := time.Since(startTime)

	succeeded := 0
	for _, r := range results {
		if r.Result.Succeeded {
			succeeded++
		}
	}
	failed := len(results) - succeeded

	logging.DebugLog("Run completed in %v. Processed: %d/%d, Succeeded: %d, Failed: %d, Cancelled: %v",
		elapsed, len(results), total, succeeded, failed, cancelled)

	if cancelled {
		fmt.Fprintln(w, "\nDownloads cancelled.")
	} else {
		fmt.Fprintln(w, "\nDownloads complete.")
	}
	fmt.Fprintf(w, "Processed %d/%d items in %v.\n", len(results), total, elapsed.Round(time.Second))
	fmt.Fprintf(w, "Successful: %d\n", succeeded)

	if failed > 0 {
		fmt.Fprintf(w, "Failed: %d\n", failed)
		fmt.Fprintln(w, "Check the download log for details.")
	}
}
