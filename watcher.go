package staticserve

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
)

// folderWatcher will log all the changes done to files in the served
// folder and its sub folders.
type folderWatcher struct {
	watcher     *fsnotify.Watcher
	errorKernel *errorKernel
	metrics     *metrics
}

// newFolderWatcher will start watching folder, and all folders below it,
// until ctx is done or Close is called.
func newFolderWatcher(ctx context.Context, folder string, ek *errorKernel, m *metrics) (*folderWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error: newFolderWatcher: failed to create new watcher: %v", err)
	}

	fw := folderWatcher{
		watcher:     watcher,
		errorKernel: ek,
		metrics:     m,
	}

	err = fw.addTree(folder)
	if err != nil {
		watcher.Close()
		return nil, err
	}

	go fw.run(ctx)

	return &fw, nil
}

// addTree will add dir and every directory below it to the watcher.
func (fw *folderWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error: addTree: failed to walk %v: %v", p, err)
		}
		if !d.IsDir() {
			return nil
		}

		err = fw.watcher.Add(p)
		if err != nil {
			return fmt.Errorf("error: addTree: failed to add watcher for %v: %v", p, err)
		}
		return nil
	})
}

func (fw *folderWatcher) run(ctx context.Context) {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			// New folders needs to be watched too.
			if event.Has(fsnotify.Create) {
				fi, err := os.Stat(event.Name)
				if err == nil && fi.IsDir() {
					err := fw.addTree(event.Name)
					if err != nil {
						fw.errorKernel.logWarn("failed to watch new folder", "name", event.Name, "error", err)
					}
				}
			}

			op := eventOp(event)
			fw.metrics.promFolderEventsTotal.With(prometheus.Labels{"op": op}).Inc()
			fw.errorKernel.logInfo("served folder changed", "name", event.Name, "op", op)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.errorKernel.logWarn("served folder watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

// eventOp returns the name of the most significant operation in the
// event, to be used as a metric label.
func eventOp(event fsnotify.Event) string {
	switch {
	case event.Has(fsnotify.Create):
		return "create"
	case event.Has(fsnotify.Write):
		return "write"
	case event.Has(fsnotify.Remove):
		return "remove"
	case event.Has(fsnotify.Rename):
		return "rename"
	case event.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}

func (fw *folderWatcher) Close() error {
	return fw.watcher.Close()
}
