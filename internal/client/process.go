package client

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/orion/internal/core"
)

const processExitWait = 5 * time.Second

// ServerProcess is a game server started by the client.
type ServerProcess struct {
	Logger *logrus.Logger

	cmd   *exec.Cmd
	done  chan struct{}
	err   error
	freed bool
}

// ServerArgs are the command line arguments a spawned server is started with.
func ServerArgs(cfg *core.Config) []string {
	return []string{
		"server",
		"--resource-dir", cfg.ResourceDir,
		"--save-dir", cfg.SaveDir,
		"--log-level", cfg.Logging.LogLevel,
		"--port", strconv.Itoa(cfg.Server.Port),
	}
}

// StartServer launches binary with args and begins tracking it.
func StartServer(logger *logrus.Logger, binary string, args []string) (*ServerProcess, error) {
	cmd := exec.Command(binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting server %s: %w", binary, err)
	}
	logger.Infof("started server process %d", cmd.Process.Pid)

	p := &ServerProcess{Logger: logger, cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Running reports whether the process has not yet exited.
func (p *ServerProcess) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Kill stops the process immediately and waits for it to exit.
func (p *ServerProcess) Kill() error {
	if p.freed || !p.Running() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("error killing server process: %w", err)
	}
	p.wait()
	return nil
}

// RequestTermination asks the process to shut down and waits a bounded time
// for it to do so before killing it.
func (p *ServerProcess) RequestTermination() error {
	if p.freed || !p.Running() {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		p.Logger.Debugf("error signalling server process, killing it instead: %s", err)
		return p.Kill()
	}
	if !p.wait() {
		p.Logger.Warnf("server process %d did not exit after %v; killing it", p.cmd.Process.Pid, processExitWait)
		return p.Kill()
	}
	return nil
}

// Free stops tracking the process without stopping it, leaving it to run on
// after the client is done with it.
func (p *ServerProcess) Free() {
	p.freed = true
}

func (p *ServerProcess) wait() bool {
	select {
	case <-p.done:
		return true
	case <-time.After(processExitWait):
		return false
	}
}
