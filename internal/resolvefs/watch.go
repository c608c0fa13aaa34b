package resolvefs

import (
	"context"
	"errors"
	"time"

	"github.com/jamesdiacono/replete/internal/locator"
)

// pollInterval is deliberately simple: the production watcher is an
// external collaborator per spec §1, and no fsnotify-style dependency
// appears anywhere in the example pack to wire in its place (see
// DESIGN.md).
const pollInterval = 500 * time.Millisecond

// Watch polls l's mtime/size on an interval and sends once on the
// returned channel when either changes, then closes it — "event when
// the file changes once" (spec §4.8). The channel also closes, with no
// send, if ctx is canceled first.
func (f *FS) Watch(ctx context.Context, l locator.Locator) (<-chan struct{}, error) {
	if !l.IsFile() {
		return nil, ErrCannotWatch
	}
	info, err := f.fs.Stat(l.Path())
	if err != nil {
		return nil, err
	}
	mtime, size := info.ModTime(), info.Size()

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := f.fs.Stat(l.Path())
				if err != nil {
					ch <- struct{}{}
					return
				}
				if !info.ModTime().Equal(mtime) || info.Size() != size {
					ch <- struct{}{}
					return
				}
			}
		}
	}()
	return ch, nil
}

// ErrCannotWatch is returned for a watch request on a non-file locator.
var ErrCannotWatch = errors.New("resolvefs: cannot watch a non-file locator")
