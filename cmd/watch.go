// =============================================================================
// Invoice Rollup - Watch Command
// =============================================================================
//
// This file defines the 'watch' command, the trigger collaborator of the
// pipeline: it watches the watch directory and hands every new file to
// ingest.HandleNewFile.
//
// COMMAND USAGE:
//   rollup watch [flags]
//
// FLAGS:
//   --settle : Quiet period after the last write before a file is handled
//   --scan   : Queue files already present in the watch directory at start
//
// CONCURRENCY:
//   File-system events are debounced per path and queued to a single worker,
//   so runs never overlap.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-rollup/internal/ingest"
	"github.com/ginjaninja78/invoice-rollup/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// settle is how long a file must stay unchanged before it is handled.
var settle time.Duration

// scanAtStart queues existing watch-directory files on startup.
var scanAtStart bool

// =============================================================================
// WATCH COMMAND DEFINITION
// =============================================================================

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Handle invoice files as they arrive in the watch directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "Quiet period before a new file is handled")
	watchCmd.Flags().BoolVar(&scanAtStart, "scan", false, "Handle files already in the watch directory at startup")
}

// =============================================================================
// WATCH LOOP
// =============================================================================

func runWatch(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pipeline, closer, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(cfg.WatchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cfg.WatchDir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := make(chan string, 64)
	debounce := newDebouncer(settle, func(path string) {
		select {
		case jobs <- path:
		case <-ctx.Done():
		}
	})
	defer debounce.stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker(ctx, pipeline, jobs)
	}()

	if scanAtStart {
		existing, err := pipeline.Files().DiscoverIn(cfg.WatchDir)
		if err != nil {
			return fmt.Errorf("failed to scan watch directory: %w", err)
		}
		for _, path := range existing {
			debounce.touch(path)
		}
	}

	slog.Info("watching for invoice files", "dir", cfg.WatchDir, "settle", settle)

	files := pipeline.Files()
	for {
		select {
		case <-ctx.Done():
			debounce.stop()
			wg.Wait()
			slog.Info("watcher stopped")
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if files.IsCandidate(ev.Name) {
				debounce.touch(ev.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

// worker handles queued paths one at a time until ctx is done.
func worker(ctx context.Context, pipeline *ingest.Pipeline, jobs <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-jobs:
			// a run for the same month may already have archived it
			if !utils.FileExists(path) {
				continue
			}
			if _, err := handleFile(ctx, pipeline, path); err != nil {
				slog.Error("run failed", "path", path, "error", err)
			}
		}
	}
}

// =============================================================================
// DEBOUNCER
// =============================================================================

// debouncer calls fire once per path after the path has been quiet for
// delay.
type debouncer struct {
	delay  time.Duration
	fire   func(string)
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newDebouncer(delay time.Duration, fire func(string)) *debouncer {
	return &debouncer{delay: delay, fire: fire, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) touch(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[path]; ok {
		t.Reset(d.delay)
		return
	}
	d.timers[path] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
		d.fire(path)
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}
