package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fsnotify/fsnotify"

	"github.com/budgetlog/logbook/logging"
)

// Editors often write a file in several steps.
const debounceDelay = 100 * time.Millisecond

type WatchCmd struct {
	File string `help:"Rules filename (default: rules.path from the configuration)." arg:"" optional:"" type:"path"`
	JSON bool   `help:"Print rule errors as JSON." name:"json"`
}

func (cmd *WatchCmd) Run(ctx *kong.Context, globals *Globals) error {
	s, err := globals.start(ctx, "watch")
	if err != nil {
		return err
	}
	defer s.finish()

	file := &FileOrStdin{Filename: cmd.File}
	if file.Filename == "" {
		file.Filename = s.cfg.Rules.Path
	}

	runCtx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	w := &rulesWatcher{
		file:    file,
		json:    cmd.JSON,
		watcher: watcher,
		logger:  s.logger.WithComponent("watch"),
		kctx:    ctx,
		watched: make(map[string]bool),
	}
	w.check(runCtx)
	if len(w.watched) == 0 {
		w.watch([]string{file.GetAbsoluteFilename()})
	}
	printInfof(ctx.Stderr, "watching %s, press Ctrl+C to stop", pathStyle.Render(file.Filename))
	return w.run(runCtx)
}

type rulesWatcher struct {
	file    *FileOrStdin
	json    bool
	watcher *fsnotify.Watcher
	logger  *logging.Logger
	kctx    *kong.Context
	watched map[string]bool
}

// run rechecks the rules after every burst of changes until ctx is done.
func (w *rulesWatcher) run(ctx context.Context) error {
	var debounce *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			// Remove and Rename are common in atomic saves.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			_, _ = fmt.Fprintln(w.kctx.Stdout)
			w.check(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// check compiles the rules once and follows the files they now include.
func (w *rulesWatcher) check(ctx context.Context) {
	f, err := checkRules(ctx, w.file, w.json, w.kctx.Stdout, w.kctx.Stderr)
	if err != nil && !Reported(err) {
		printError(w.kctx.Stderr, err.Error())
	}
	if f != nil {
		w.watch(f.Files)
	}
}

// watch replaces the watch list with files. Files are re-added on every
// call so that atomically replaced files stay watched.
func (w *rulesWatcher) watch(files []string) {
	next := make(map[string]bool, len(files))
	for _, file := range files {
		next[file] = true
		if err := w.watcher.Add(file); err != nil {
			w.logger.Warn("failed to watch file", "file", file, "error", err)
		}
	}
	for file := range w.watched {
		if !next[file] {
			_ = w.watcher.Remove(file)
		}
	}
	w.watched = next
}
