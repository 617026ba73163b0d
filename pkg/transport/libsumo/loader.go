package libsumo

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"strings"
	"sync"

	"github.com/kalifun/tracilink/errors"
	"github.com/sirupsen/logrus"
)

// NewLibrarySymbol is the constructor a libsumo plugin exports, with the
// signature func() Library.
const NewLibrarySymbol = "NewLibrary"

// DefaultLibraryName is the plugin file looked up in the search paths.
const DefaultLibraryName = "libsumo.so"

type openFunc func(path string) (Library, error)

// The native library is process-global: it is opened at most once and every
// transport shares the handle.
var (
	loadMu     sync.Mutex
	loadedPath string
	loadedLib  Library
	opener     openFunc = openPlugin
)

func openPlugin(path string) (Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup(NewLibrarySymbol)
	if err != nil {
		return nil, err
	}
	ctor, ok := sym.(func() Library)
	if !ok {
		return nil, fmt.Errorf("symbol %s has type %T", NewLibrarySymbol, sym)
	}
	return ctor(), nil
}

// SearchPaths returns the candidate locations of name in probe order: the
// primary path under $SUMO_HOME/bin, then every LD_LIBRARY_PATH entry.
func SearchPaths(name string) []string {
	var paths []string
	if home := os.Getenv("SUMO_HOME"); home != "" {
		paths = append(paths, filepath.Join(home, "bin", name))
	}
	for _, dir := range filepath.SplitList(os.Getenv("LD_LIBRARY_PATH")) {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, name)
		if len(paths) == 0 || paths[0] != p {
			paths = append(paths, p)
		}
	}
	return paths
}

// Load opens the native library, or returns the already loaded handle when
// it came from one of the candidate paths. A different library already loaded
// in this process is an error.
func Load(name string) (Library, string, error) {
	if name == "" {
		name = DefaultLibraryName
	}
	paths := SearchPaths(name)

	loadMu.Lock()
	defer loadMu.Unlock()

	if loadedLib != nil {
		for _, p := range paths {
			if p == loadedPath {
				return loadedLib, loadedPath, nil
			}
		}
		return nil, "", errors.LibraryLoad.Args(fmt.Sprintf(
			"libsumo is already loaded from %s, cannot load %s from a different location", loadedPath, name))
	}

	if len(paths) == 0 {
		return nil, "", errors.LibraryLoad.Args(fmt.Sprintf(
			"cannot locate %s: neither SUMO_HOME nor LD_LIBRARY_PATH is set; set SUMO_HOME and add $SUMO_HOME/bin to LD_LIBRARY_PATH", name))
	}

	attempts := make([]string, 0, len(paths))
	for _, p := range paths {
		lib, err := opener(p)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "libsumo",
				"path":      p,
				"error":     err.Error(),
			}).Debug("Native library probe failed")
			attempts = append(attempts, fmt.Sprintf("%s (%v)", p, err))
			continue
		}
		loadedLib, loadedPath = lib, p
		logrus.WithFields(logrus.Fields{
			"component": "libsumo",
			"path":      p,
		}).Info("Native library loaded")
		return lib, p, nil
	}

	return nil, "", errors.LibraryLoad.Args(fmt.Sprintf(
		"cannot load %s, attempted: %s; add $SUMO_HOME/bin to LD_LIBRARY_PATH", name, strings.Join(attempts, ", ")))
}
