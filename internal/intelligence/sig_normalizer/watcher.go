package sig_normalizer

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// Reloadable holds the active Normalizer and swaps it atomically when the
// asset files change on disk.
type Reloadable struct {
	current atomic.Pointer[Normalizer]
	paths   AssetPaths
	opts    []Option
}

// NewReloadable loads the assets at paths and returns a Reloadable serving
// the resulting Normalizer.
func NewReloadable(paths AssetPaths, opts ...Option) (*Reloadable, error) {
	r := &Reloadable{paths: paths, opts: opts}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Normalize delegates to the active Normalizer.
func (r *Reloadable) Normalize(text string) string {
	return r.current.Load().Normalize(text)
}

// Reload rebuilds the Normalizer from disk. On error the previous one stays
// active.
func (r *Reloadable) Reload() error {
	assets, err := LoadAssets(r.paths)
	if err != nil {
		return err
	}
	r.current.Store(New(assets, r.opts...))
	return nil
}

// Watch reloads the assets whenever one of the configured files is written
// or replaced. It blocks until ctx is done. With no file paths configured
// it returns immediately.
func (r *Reloadable) Watch(ctx context.Context, log logging.Logger) error {
	if log == nil {
		log = logging.NewNopLogger()
	}
	targets := map[string]bool{}
	for _, p := range []string{r.paths.ReplaceWords, r.paths.KeepWords} {
		if p != "" {
			targets[filepath.Clean(p)] = true
		}
	}
	if len(targets) == 0 {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeAssetLoadFailed, "create asset watcher")
	}
	defer w.Close()

	// Watch directories so editors that replace files by rename are seen.
	dirs := map[string]bool{}
	for p := range targets {
		dirs[filepath.Dir(p)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return errors.Wrap(err, errors.ErrCodeAssetLoadFailed, "watch asset directory "+d)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(ev.Name)] || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := r.Reload(); err != nil {
				log.Warn("normalizer asset reload failed", logging.String("file", ev.Name), logging.Err(err))
				continue
			}
			log.Info("normalizer assets reloaded", logging.String("file", ev.Name))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("asset watcher error", logging.Err(err))
		}
	}
}
