package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig controls the inbox watcher.
type WatchConfig struct {
	Dir         string
	InitialScan bool
	Debounce    time.Duration
}

// Watch emits paths of PDFs that appear in cfg.Dir. Bursts of write events
// for one file are coalesced by the debounce window so a file is emitted
// once its copy settles. Subdirectories are not watched.
func Watch(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	if cfg.Dir == "" {
		return nil, nil, errors.New("watch directory required")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := w.Add(cfg.Dir); err != nil {
		_ = w.Close()
		return nil, nil, err
	}

	paths := make(chan string, 256)
	errs := make(chan error, 1)

	var initial []string
	if cfg.InitialScan {
		initial, err = listReports(cfg.Dir)
		if err != nil {
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		var (
			mu      sync.Mutex
			pending = map[string]struct{}{}
			timer   *time.Timer
			flushes = make(chan struct{}, 1)
		)
		defer close(paths)
		defer close(errs)
		defer func() {
			_ = w.Close()
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
		}()

		for _, p := range initial {
			select {
			case paths <- p:
			case <-ctx.Done():
				return
			}
		}

		flush := func() {
			mu.Lock()
			ready := make([]string, 0, len(pending))
			for p := range pending {
				ready = append(ready, p)
				delete(pending, p)
			}
			mu.Unlock()
			for _, p := range ready {
				select {
				case paths <- p:
				case <-ctx.Done():
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-flushes:
				flush()
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if !isReport(e.Name) || e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				pending[e.Name] = struct{}{}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(cfg.Debounce, func() {
					select {
					case flushes <- struct{}{}:
					default:
					}
				})
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				select {
				case errs <- err:
				default:
				}
			}
		}
	}()

	return paths, errs, nil
}

func listReports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isReport(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

func isReport(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
