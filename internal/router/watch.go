package router

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const reloadDebounce = 500 * time.Millisecond

// PolicyWatcher reloads the routing table when the policy file changes on
// disk. It watches the parent directory because editors typically replace
// the file via rename, which would drop a watch on the file itself.
type PolicyWatcher struct {
	router   *Router
	path     string
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
}

func NewPolicyWatcher(router *Router, path string) (*PolicyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	return &PolicyWatcher{
		router:   router,
		path:     path,
		watcher:  watcher,
		stopChan: make(chan struct{}),
	}, nil
}

func (w *PolicyWatcher) Start(ctx context.Context) {
	go w.watchLoop(ctx)
	logutil.GetLogger(ctx).Info("started routing policy watcher", zap.String("path", w.path))
}

func (w *PolicyWatcher) Stop(ctx context.Context) {
	close(w.stopChan)
	w.watcher.Close()
	logutil.GetLogger(ctx).Info("stopped routing policy watcher")
}

func (w *PolicyWatcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer

	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				w.reload(ctx)
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logutil.GetLogger(ctx).Error("routing policy watcher error", zap.Error(err))
		}
	}
}

// reload keeps the previous table when the new file fails to parse, so a
// bad edit degrades to stale routing rather than broken routing.
func (w *PolicyWatcher) reload(ctx context.Context) {
	policy, err := LoadPolicyFile(w.path)
	if err != nil {
		logutil.GetLogger(ctx).Error("reload routing policy failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.router.Reload(policy); err != nil {
		logutil.GetLogger(ctx).Error("apply routing policy failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	logutil.GetLogger(ctx).Info("routing policy reloaded", zap.String("path", w.path))
}
