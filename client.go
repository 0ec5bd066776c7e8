package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"difftab/logger"
)

const (
	daemonWait     = 5 * time.Second
	daemonPollStep = 100 * time.Millisecond
)

// connectDaemon returns a live connection to the daemon socket, spawning the
// daemon when nothing is listening. The socket is the readiness signal; the
// pid file only suppresses a duplicate spawn while a daemon started by
// another client is still coming up.
func connectDaemon() (net.Conn, error) {
	conn, err := net.Dial("unix", getSocketPath())
	if err == nil {
		return conn, nil
	}

	if running, pid := isDaemonRunning(); running {
		logger.Debug("daemon pid %d is up, waiting for its socket", pid)
	} else if err := spawnDaemon(); err != nil {
		return nil, fmt.Errorf("spawning daemon: %w", err)
	}

	return dialDaemon(getSocketPath(), daemonWait)
}

// spawnDaemon re-executes this binary in daemon mode, detached from the
// editor's stdio and session so it outlives the client that spawned it.
func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(exe, "--daemon")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	logger.Debug("spawned daemon pid %d", cmd.Process.Pid)
	return cmd.Process.Release()
}

// dialDaemon polls the socket until the daemon accepts or the wait budget
// runs out.
func dialDaemon(socketPath string, wait time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(wait)
	for {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("daemon not ready after %v: %w", wait, err)
		}
		time.Sleep(daemonPollStep)
	}
}

// relaySession pumps the editor's msgpack-rpc stream through the daemon
// connection. The editor closing its end finishes the session: the inbound
// pump closes the socket, which unblocks the outbound pump. A daemon-side
// hangup surfaces as EOF on the socket and ends the session the same way.
func relaySession(conn net.Conn, in io.Reader, out io.Writer) error {
	go func() {
		io.Copy(conn, in)
		conn.Close()
	}()

	_, err := io.Copy(out, conn)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
