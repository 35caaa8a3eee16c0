package signalhandler

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

const (
	MinWorkers = 1
	MaxWorkers = 20
)

// SetupHandler calls cancel on the first SIGINT/SIGTERM so the running batch can wind down.
// A second signal exits immediately. The returned func stops signal delivery.
func SetupHandler(cancel func()) func() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigChan:
			os.Exit(130)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// GetOptimalWorkers returns the default download concurrency for the system.
// Downloads are network bound, so this goes above the CPU count, within 1-20.
func GetOptimalWorkers() int {
	workers := runtime.NumCPU()
	if workers < 5 {
		workers = 5
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	return workers
}
