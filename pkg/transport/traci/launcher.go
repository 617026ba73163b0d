package traci

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LaunchConfig describes a sumo process started by the transport.
type LaunchConfig struct {
	// Binary defaults to $SUMO_HOME/bin/sumo, then sumo on PATH.
	Binary string   `json:"binary" yaml:"binary"`
	Args   []string `json:"args" yaml:"args"`
	// GracefulTimeout bounds the wait after interrupting the process.
	GracefulTimeout time.Duration `json:"gracefulTimeout" yaml:"gracefulTimeout"`
}

// Launcher runs sumo with --remote-port and tracks its exit.
type Launcher struct {
	config LaunchConfig
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
	output *syncBuffer
	logger *logrus.Entry
}

func NewLauncher(config LaunchConfig) *Launcher {
	if config.GracefulTimeout <= 0 {
		config.GracefulTimeout = 5 * time.Second
	}
	return &Launcher{
		config: config,
		done:   make(chan struct{}),
		output: &syncBuffer{},
		logger: logrus.WithField("component", "sumo-launcher"),
	}
}

// Binary resolves the sumo executable.
func (l *Launcher) Binary() string {
	if l.config.Binary != "" {
		return l.config.Binary
	}
	if home := os.Getenv("SUMO_HOME"); home != "" {
		return filepath.Join(home, "bin", "sumo")
	}
	return "sumo"
}

// Start spawns the process listening on port.
func (l *Launcher) Start(port int) error {
	args := append(append([]string{}, l.config.Args...), "--remote-port", strconv.Itoa(port))
	l.cmd = exec.Command(l.Binary(), args...)
	l.cmd.Env = os.Environ()
	l.cmd.Stdout = l.output
	l.cmd.Stderr = l.output

	if err := l.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", l.Binary(), err)
	}
	l.logger.WithFields(logrus.Fields{
		"binary": l.Binary(),
		"pid":    l.cmd.Process.Pid,
		"port":   port,
	}).Info("Simulator process started")

	go func() {
		l.err = l.cmd.Wait()
		close(l.done)
	}()
	return nil
}

// Exited is closed once the process has terminated.
func (l *Launcher) Exited() <-chan struct{} {
	return l.done
}

// ExitError returns the wait result; valid after Exited is closed.
func (l *Launcher) ExitError() error {
	return l.err
}

// Output returns what the process printed so far.
func (l *Launcher) Output() string {
	return l.output.String()
}

// Stop interrupts the process and kills it if it does not exit in time.
func (l *Launcher) Stop(ctx context.Context) error {
	if l.cmd == nil || l.cmd.Process == nil {
		return nil
	}
	select {
	case <-l.done:
		return nil
	default:
	}

	_ = l.cmd.Process.Signal(os.Interrupt)
	select {
	case <-l.done:
		return nil
	case <-time.After(l.config.GracefulTimeout):
	case <-ctx.Done():
	}

	l.logger.WithField("pid", l.cmd.Process.Pid).Warn("Simulator did not exit, killing")
	if err := l.cmd.Process.Kill(); err != nil {
		return err
	}
	select {
	case <-l.done:
	case <-time.After(100 * time.Millisecond):
	}
	return nil
}

// freePort asks the kernel for an unused loopback port.
func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
