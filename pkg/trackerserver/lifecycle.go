package trackerserver

import "go.uber.org/zap"

// lifecycle is an ordered group of named closers, closed last-added
// first on shutdown. It generalizes the teacher's private/lifecycle
// pattern for this daemon's listener/background-loop teardown, per
// SPEC_FULL.md §3's graceful-shutdown note.
type lifecycle struct {
	entries []lifecycleEntry
}

type lifecycleEntry struct {
	name  string
	close func() error
}

func (l *lifecycle) add(name string, close func() error) {
	l.entries = append(l.entries, lifecycleEntry{name: name, close: close})
}

// closeAll closes every registered entry in reverse registration order,
// logging (but not stopping on) individual failures, and returns the
// first error encountered.
func (l *lifecycle) closeAll(log *zap.Logger) error {
	var first error
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if err := e.close(); err != nil {
			log.Warn("shutdown: closer failed", zap.String("closer", e.name), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
