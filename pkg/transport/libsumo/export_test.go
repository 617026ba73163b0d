package libsumo

import "github.com/kalifun/tracilink/pkg/types"

// SetOpener replaces the plugin opener and forgets any loaded library. The
// returned function restores the real opener.
func SetOpener(open func(path string) (Library, error)) func() {
	loadMu.Lock()
	defer loadMu.Unlock()

	loadedLib, loadedPath = nil, ""
	opener = open
	return func() {
		loadMu.Lock()
		defer loadMu.Unlock()
		loadedLib, loadedPath = nil, ""
		opener = openPlugin
	}
}

// Subscribed returns how many entities of kind have a subscription window.
func (t *Transport) Subscribed(kind types.EntityKind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows[kind])
}
