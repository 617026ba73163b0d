// Package libsumo drives SUMO in-process through a natively loaded library.
// Results are converted into the same typed values the socket backend
// decodes, so callers cannot tell the two apart.
package libsumo

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/kalifun/tracilink/pkg/version"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ID string `json:"id" yaml:"id"`
	// LibraryName is the plugin file searched under $SUMO_HOME/bin and LD_LIBRARY_PATH.
	LibraryName string `json:"libraryName" yaml:"libraryName"`
	// Args is the sumo command line passed to the library at start. Empty
	// means the caller already loaded a simulation.
	Args   []string            `json:"args" yaml:"args"`
	Extras types.VehicleExtras `json:"extras" yaml:"extras"`

	// Library skips loading and uses the given implementation.
	Library Library `json:"-" yaml:"-"`
}

// Transport implements core.Transport on top of a Library.
type Transport struct {
	id      string
	config  Config
	lib     Library
	path    string
	logger  *logrus.Entry
	mu      sync.Mutex
	running bool
	closed  bool
	broken  error
	api     version.APIVersion
	release string
	windows map[types.EntityKind]map[string]types.Window
}

var _ core.Transport = (*Transport)(nil)

func NewTransport(config Config) *Transport {
	id := config.ID
	if id == "" {
		id = "libsumo-" + uuid.NewString()[:8]
	}
	return &Transport{
		id:      id,
		config:  config,
		logger:  logrus.WithFields(logrus.Fields{"component": "transport", "transport_id": id}),
		windows: make(map[types.EntityKind]map[string]types.Window),
	}
}

func (t *Transport) ID() string {
	return t.id
}

func (t *Transport) Backend() core.Backend {
	return core.BackendLibsumo
}

func (t *Transport) APIVersion() version.APIVersion {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.api
}

func (t *Transport) SimulatorVersion() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.release
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return errors.TransportAlreadyRunning.Args(t.id)
	}
	if t.broken != nil || t.closed {
		return errors.TransportClosed.Args(t.id)
	}

	lib, path := t.config.Library, "injected"
	if lib == nil {
		var err error
		if lib, path, err = Load(t.config.LibraryName); err != nil {
			t.logger.WithError(err).Error("Failed to load native library")
			return err
		}
	}
	t.lib, t.path = lib, path

	var (
		level   int
		release string
	)
	err := t.native("getVersion", func() (err error) {
		level, release, err = lib.Simulation().GetVersion()
		return err
	})
	if err != nil {
		return errors.ConnectionFailed.Wrap(err, "libsumo version query")
	}
	if !version.MatchesLibsumo(release) {
		return errors.VersionMismatch.Args(release, version.LibsumoPattern)
	}
	api, err := version.Parse(level)
	if err != nil {
		return errors.VersionMismatch.Wrap(err, release, version.LibsumoPattern)
	}

	if len(t.config.Args) > 0 {
		if err := t.native("load", func() error { return lib.Simulation().Load(t.config.Args) }); err != nil {
			return errors.ConnectionFailed.Wrap(err, "libsumo load")
		}
	}

	t.api, t.release, t.running = api, release, true
	t.logger.WithFields(logrus.Fields{
		"path":        path,
		"release":     release,
		"api_version": api.String(),
	}).Info("libsumo transport started")
	return nil
}

func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return errors.TransportNotRunning.Args(t.id)
	}
	t.running = false
	t.windows = make(map[types.EntityKind]map[string]types.Window)
	t.logger.Info("libsumo transport stopped")
	return nil
}

// usable must be called with mu held.
func (t *Transport) usable() error {
	if t.broken != nil {
		return errors.TransportClosed.Wrap(t.broken, t.id)
	}
	if t.closed {
		return errors.TransportClosed.Args(t.id)
	}
	if !t.running {
		return errors.TransportNotRunning.Args(t.id)
	}
	return nil
}

// invoke runs one contract under the transport lock.
func (t *Transport) invoke(ctx context.Context, contract core.Contract, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.usable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Canceled.Wrap(err, contract)
	}
	return t.native(string(contract), fn)
}

// native calls into the library. Plain errors are the simulator rejecting
// the call; a panic leaves the native state unknown and poisons the
// transport.
func (t *Transport) native(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NativeCrash.Args(name, r)
			t.broken = err
			t.logger.WithFields(logrus.Fields{
				"call":  name,
				"panic": fmt.Sprint(r),
			}).Error("Native call crashed")
		}
	}()

	if err := fn(); err != nil {
		var coded *errors.Error
		if errors.As(err, &coded) {
			if errors.IsFatal(coded) {
				t.broken = coded
			}
			return coded
		}
		return errors.CommandFailed.Args(name, err.Error())
	}
	return nil
}
