// Package traci drives SUMO over a TraCI socket connection.
package traci

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/protocol"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/kalifun/tracilink/pkg/version"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ID   string `json:"id" yaml:"id"`
	Host string `json:"host" yaml:"host"`
	// Port of a running sumo. Zero with Launch set picks a free port.
	Port int `json:"port" yaml:"port"`
	// Order is sent with CMD_SETORDER when positive.
	Order          int           `json:"order" yaml:"order"`
	ConnectTimeout time.Duration `json:"connectTimeout" yaml:"connectTimeout"`
	RetryInterval  time.Duration `json:"retryInterval" yaml:"retryInterval"`
	Launch         *LaunchConfig `json:"launch,omitempty" yaml:"launch,omitempty"`

	Extras types.VehicleExtras `json:"-" yaml:"-"`
}

// Transport implements core.Transport over one TCP connection.
type Transport struct {
	id         string
	config     Config
	conn       net.Conn
	launcher   *Launcher
	logger     *logrus.Entry
	mu         sync.Mutex
	running    bool
	closed     bool
	broken     error
	api        version.APIVersion
	identifier string
}

var _ core.Transport = (*Transport)(nil)

func NewTransport(config Config) *Transport {
	if config.Host == "" {
		config.Host = "127.0.0.1"
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 100 * time.Millisecond
	}
	id := config.ID
	if id == "" {
		id = "traci-" + uuid.NewString()[:8]
	}
	return &Transport{
		id:     id,
		config: config,
		logger: logrus.WithFields(logrus.Fields{"component": "transport", "transport_id": id}),
	}
}

func (t *Transport) ID() string {
	return t.id
}

func (t *Transport) Backend() core.Backend {
	return core.BackendTraCI
}

func (t *Transport) APIVersion() version.APIVersion {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.api
}

func (t *Transport) SimulatorVersion() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.identifier
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

	port := t.config.Port
	if t.config.Launch != nil {
		if port == 0 {
			p, err := freePort()
			if err != nil {
				return errors.ConnectionFailed.Wrap(err, "no free port for sumo")
			}
			port = p
		}
		t.launcher = NewLauncher(*t.config.Launch)
		if err := t.launcher.Start(port); err != nil {
			return errors.ProcessFailed.Wrap(err, t.launcher.Binary(), "start")
		}
	}

	conn, err := t.dial(ctx, port)
	if err != nil {
		t.stopLauncher(ctx)
		return err
	}
	t.conn = conn

	if err := t.handshake(ctx); err != nil {
		t.logger.WithError(err).Error("TraCI handshake failed")
		_ = conn.Close()
		t.stopLauncher(ctx)
		return err
	}

	t.running = true
	t.logger.WithFields(logrus.Fields{
		"address":     conn.RemoteAddr().String(),
		"simulator":   t.identifier,
		"api_version": t.api.String(),
	}).Info("TraCI transport started")
	return nil
}

// dial retries until sumo accepts the connection or the connect timeout
// passes. A launched process exiting early ends the wait.
func (t *Transport) dial(ctx context.Context, port int) (net.Conn, error) {
	addr := net.JoinHostPort(t.config.Host, strconv.Itoa(port))
	deadline := time.Now().Add(t.config.ConnectTimeout)
	dialer := &net.Dialer{Timeout: t.config.RetryInterval * 10}

	var exited <-chan struct{}
	if t.launcher != nil {
		exited = t.launcher.Exited()
	}

	for attempt := 1; ; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			if tcp, ok := conn.(*net.TCPConn); ok {
				_ = tcp.SetNoDelay(true)
			}
			return conn, nil
		}
		t.logger.WithFields(logrus.Fields{
			"address": addr,
			"attempt": attempt,
		}).Debug("Waiting for simulator")

		if time.Now().After(deadline) {
			return nil, errors.ConnectionFailed.Wrap(err, addr)
		}
		select {
		case <-ctx.Done():
			return nil, errors.ConnectionFailed.Wrap(ctx.Err(), addr)
		case <-exited:
			return nil, errors.ProcessFailed.Args(t.launcher.Binary(),
				fmt.Sprintf("exited before accepting connections (%v): %s", t.launcher.ExitError(), t.launcher.Output()))
		case <-time.After(t.config.RetryInterval):
		}
	}
}

// handshake checks the simulator version, claims the client order and
// subscribes to the simulation variables read after every step.
func (t *Transport) handshake(ctx context.Context) error {
	resp, err := t.exchange(ctx, "getVersion", protocol.NewRequest(protocol.CmdGetVersion))
	if err != nil {
		return err
	}
	id, c := resp.Body.Command()
	level := c.Int()
	identifier := c.String()
	if err := resp.Body.Err(); err != nil || id != protocol.CmdGetVersion {
		return t.fail(errors.ProtocolDesync.Wrap(fmt.Errorf("malformed version response %v", err), "getVersion"))
	}
	if err := c.Err(); err != nil {
		return t.fail(errors.ProtocolDesync.Wrap(err, "getVersion"))
	}
	if !version.MatchesTraCI(identifier) {
		return errors.VersionMismatch.Args(identifier, version.TraCIPattern)
	}
	api, err := version.Parse(int(level))
	if err != nil {
		return errors.VersionMismatch.Wrap(err, identifier, version.TraCIPattern)
	}
	t.api, t.identifier = api, identifier

	if t.config.Order > 0 && version.IsAvailable(protocol.DescSetOrder, api) {
		if _, err := t.exchange(ctx, "setOrder", protocol.NewRequest(protocol.CmdSetOrder).Int(int32(t.config.Order))); err != nil {
			return err
		}
	}

	vars := t.simulationVars()
	q := protocol.NewSubscribeRequest(protocol.CmdSubscribeSimulationVariable, 0, types.WholeRun().End, "", vars)
	resp, err = t.exchange(ctx, "simulation.subscribe", q)
	if err != nil {
		return err
	}
	if _, err := resp.Subscription(protocol.RespSubscribeSimulation); err != nil {
		return t.fail(errors.ProtocolDesync.Wrap(err, "simulation.subscribe"))
	}
	return nil
}

func (t *Transport) simulationVars() []protocol.SubscriptionVar {
	all := append([]protocol.SubscriptionVar{{Var: protocol.VarTime, Desc: protocol.DescSimulationTime}}, protocol.ArrivalVars...)
	vars := make([]protocol.SubscriptionVar, 0, len(all))
	for _, sv := range all {
		if version.IsAvailable(sv.Desc, t.api) {
			vars = append(vars, sv)
		}
	}
	return vars
}

func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return errors.TransportNotRunning.Args(t.id)
	}
	t.running = false
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.stopLauncher(ctx)
	t.logger.Info("TraCI transport stopped")
	return nil
}

func (t *Transport) stopLauncher(ctx context.Context) {
	if t.launcher == nil {
		return
	}
	if err := t.launcher.Stop(ctx); err != nil {
		t.logger.WithError(err).Warn("Failed to stop simulator process")
	}
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

// invoke runs fn with the connection exclusively held.
func (t *Transport) invoke(contract core.Contract, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.usable(); err != nil {
		return err
	}
	return fn()
}

// exchange sends one request and reads its response. Must be called with
// mu held. Anything but a declared error status breaks the transport.
func (t *Transport) exchange(ctx context.Context, contract string, q *protocol.Request) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Canceled.Wrap(err, contract)
	}
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetDeadline(deadline); err != nil {
		return nil, t.fail(errors.ConnectionFailed.Wrap(err, contract))
	}

	if err := protocol.WriteMessage(t.conn, q.Body()); err != nil {
		return nil, t.fail(t.ioError(contract, err))
	}
	body, err := protocol.ReadMessage(t.conn)
	if err != nil {
		return nil, t.fail(t.ioError(contract, err))
	}

	resp, err := protocol.DecodeResponse(body, q.Opcode())
	if err != nil {
		var st *protocol.StatusError
		if errors.As(err, &st) {
			t.logger.WithFields(logrus.Fields{
				"command": contract,
				"status":  st.Result,
			}).Debug(st.Description)
			return nil, errors.CommandFailed.Args(contract, st.Description)
		}
		return nil, t.fail(errors.ProtocolDesync.Wrap(err, contract))
	}
	return resp, nil
}

func (t *Transport) ioError(contract string, err error) *errors.Error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errors.TimeoutError.Wrap(err, contract)
	}
	return errors.ConnectionFailed.Wrap(err, contract)
}

// fail marks the transport unusable. Must be called with mu held.
func (t *Transport) fail(err *errors.Error) error {
	if t.broken == nil {
		t.broken = err
		t.logger.WithError(err).Error("TraCI transport broken")
		if t.conn != nil {
			_ = t.conn.Close()
		}
	}
	return err
}

// desync marks the transport broken for a response whose content did not
// have the expected layout.
func (t *Transport) desync(contract core.Contract, err error) error {
	return t.fail(errors.ProtocolDesync.Wrap(err, contract))
}
