package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pellux-network/clog/view"
)

func (a *app) watchCmd() *cobra.Command {
	var titles bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the state again every time the log changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, &liveDisplay{w: a.stdout, titles: titles})
		},
	}
	cmd.Flags().BoolVar(&titles, "titles", false, "print a [scope] title with its columns before each scope")
	return cmd
}

// liveDisplay prints a display only when it differs from the last one printed.
type liveDisplay struct {
	w      io.Writer
	titles bool

	prev  view.Display
	shown bool
}

func (ld *liveDisplay) swap(d view.Display) (bool, error) {
	if ld.shown && cmp.Equal(d, ld.prev) {
		return false, nil
	}
	if _, err := fmt.Fprintf(ld.w, "== %s (%d keys)\n", time.Now().Format("15:04:05"), d.Len()); err != nil {
		return false, err
	}
	if err := view.Write(ld.w, d, ld.titles); err != nil {
		return false, err
	}
	ld.prev = d.Copy()
	ld.shown = true
	return true, nil
}

// refresh replays the log and swaps the result in. Problems with the log are
// logged and leave the previous display in place.
func (a *app) refresh(ld *liveDisplay) error {
	_, st, err := a.load()
	if err != nil {
		log.Warn().Err(err).Str("log", a.conf.LogFile).Msg("Log not replayed")
		return nil
	}
	changed, err := ld.swap(view.Render(st))
	if err != nil {
		return err
	}
	log.Debug().Bool("changed", changed).Int("keys", st.Len()).Msg("Log replayed")
	return nil
}

// watch starts the log listener using fsnotify. It watches the directory so
// that editors replacing the file are noticed too.
func (a *app) watch(ctx context.Context, ld *liveDisplay) error {
	path, err := filepath.Abs(a.conf.LogFile)
	if err != nil {
		return err
	}
	log.Info().Str("log", path).Msg("Starting log listener")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	if err := a.refresh(ld); err != nil {
		return err
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			// Only react to writes/creates/renames
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if err := a.refresh(ld); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		case <-ctx.Done():
			log.Info().Msg("Log listener stopped")
			return nil
		}
	}
}
