package artifacts

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the bundle in a directory whenever its manifest is rewritten.
type Watcher struct {
	dir      string
	holder   *Holder
	logger   *zap.Logger
	debounce time.Duration
	onReload func(*Bundle)
}

func NewWatcher(dir string, holder *Holder, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, holder: holder, logger: logger, debounce: defaultDebounce}
}

// OnReload registers a callback run after each successful swap.
func (w *Watcher) OnReload(fn func(*Bundle)) {
	w.onReload = fn
}

// Run blocks until ctx is done. A bundle that fails to load is logged and the
// serving bundle is kept.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != ManifestFile {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("artifact watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	b, err := Load(w.dir)
	if err != nil {
		w.logger.Error("artifact reload failed, keeping current bundle", zap.Error(err))
		return
	}
	if cur := w.holder.Current(); cur != nil && cur.Version == b.Version {
		return
	}
	w.holder.Swap(b)
	w.logger.Info("artifact bundle reloaded",
		zap.String("version", b.Version),
		zap.Int("features", b.Schema.Len()),
	)
	if w.onReload != nil {
		w.onReload(b)
	}
}
