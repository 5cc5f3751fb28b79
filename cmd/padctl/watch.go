// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/warthog618/go-padmux/internal/board"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Hold the board's active bindings, reloading when the board file changes",
	Long: `Bring up the board and claim its active bindings, then watch the board
file for changes.  On each change the bindings are switched to match the
revised board.  Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	path, err := boardPath()
	if err != nil {
		return err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read board %s", path)
	}
	b, err := board.Decode(v)
	if err != nil {
		return err
	}
	sys, err := b.Open(logger.Logger)
	if err != nil {
		return err
	}
	w := &watcher{sys: sys, out: cmd.OutOrStdout()}
	defer sys.Close()
	// registered after Close so it runs first
	defer w.stop()
	if err := sys.Activate(); err != nil {
		logger.Warn("activate incomplete", "error", err)
	}
	printOwners(w.out, sys.Pads.Registry().Snapshot())

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("board changed", "path", e.Name, "op", e.Op.String())
		nb, err := board.Decode(v)
		if err != nil {
			logger.Error("reload", "error", err)
			return
		}
		w.reload(nb)
	})
	v.WatchConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("watch stopped")
	return nil
}

// watcher applies board changes to a system until stopped.
type watcher struct {
	mu      sync.Mutex
	sys     *board.System
	out     io.Writer
	stopped bool
}

// reload switches the system to the revised board, unless the watcher has
// been stopped.  Returns false if stopped.
func (w *watcher) reload(nb *board.Board) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		logger.Info("reload ignored, watch stopped")
		return false
	}
	if err := w.sys.Reload(nb); err != nil {
		fmt.Fprintf(w.out, "reload: %v\n", err)
	}
	printOwners(w.out, w.sys.Pads.Registry().Snapshot())
	return true
}

// stop prevents further reloads, waiting for any in progress to complete.
func (w *watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}
