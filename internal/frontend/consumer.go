// Package frontend spawns an external consumer process (an "analyzer")
// and wires its stdout handshake and stderr stream the way mediasoup-go's
// worker process is spawned: exec.CommandContext, StdoutPipe/StderrPipe
// read in background goroutines, stderr fanned into diagnostics with a
// name prefix, stdout's first line treated as a handshake rather than a
// socket pair passed over ExtraFiles (the analyzer dials back in instead
// of inheriting an fd, since it is an arbitrary user-supplied program, not
// a fixed companion binary).
package frontend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/tracescope/tracescope/pkg/sink"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// handshakeTimeout bounds how long Spawn keeps retrying the dial to the
// socket path the child announced. Reading the handshake line itself has
// no timeout.
const handshakeTimeout = 5 * time.Second

// Consumer is a subprocess analyzer, reachable as a Sink over the Unix
// socket path it announced on its first line of stdout.
type Consumer struct {
	name string
	cmd  *exec.Cmd
	conn net.Conn
}

// Spawn starts command with args, waits for its handshake line (a single
// Unix socket path written to stdout), dials that socket, and fans the
// child's stderr into diagnostics prefixed with name. The child's
// remaining stdout is discarded; only stderr is treated as a diagnostic
// stream.
func Spawn(ctx context.Context, name, command string, args []string, diagnostics io.Writer) (*Consumer, error) {
	cmd := exec.CommandContext(ctx, command, args...) //nolint:gosec // command/args are operator-configured, not request input

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, tracerr.IOError(fmt.Sprintf("open stdout pipe for %s", name), err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, tracerr.IOError(fmt.Sprintf("open stderr pipe for %s", name), err)
	}

	if err := cmd.Start(); err != nil {
		return nil, tracerr.IOError(fmt.Sprintf("start consumer %s", name), err)
	}

	go fanDiagnostics(name, stderr, diagnostics)

	socketPath, err := readHandshake(stdout, name)
	if err != nil {
		_ = cmd.Process.Kill()

		return nil, err
	}

	go io.Copy(io.Discard, stdout) //nolint:errcheck // best-effort drain to avoid blocking the child on a full pipe

	conn, err := dialWithTimeout(socketPath, handshakeTimeout)
	if err != nil {
		_ = cmd.Process.Kill()

		return nil, tracerr.IOError(fmt.Sprintf("dial consumer %s at %s", name, socketPath), err)
	}

	return &Consumer{name: name, cmd: cmd, conn: conn}, nil
}

// readHandshake reads the first newline-terminated line from stdout,
// trimmed, as the socket path the child announced it is listening on.
func readHandshake(stdout io.Reader, name string) (string, error) {
	r := bufio.NewReader(stdout)

	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", tracerr.IOError(fmt.Sprintf("read handshake from consumer %s", name), err)
	}

	path := strings.TrimSpace(line)
	if path == "" {
		return "", tracerr.IOError(fmt.Sprintf("read handshake from consumer %s", name),
			fmt.Errorf("empty handshake line"))
	}

	return path, nil
}

// dialWithTimeout retries a Unix socket dial until the child has had time
// to start listening, up to timeout.
func dialWithTimeout(path string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)

	var lastErr error

	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}

		lastErr = err

		time.Sleep(10 * time.Millisecond)
	}

	return nil, lastErr
}

// fanDiagnostics copies each line of stderr into diagnostics, prefixed
// with name, until the child closes its end.
func fanDiagnostics(name string, stderr io.Reader, diagnostics io.Writer) {
	scanner := bufio.NewScanner(stderr)

	for scanner.Scan() {
		fmt.Fprintf(diagnostics, "%s: %s\n", name, scanner.Text())
	}
}

// Sink wraps the dialed connection as a SocketSink.
func (c *Consumer) Sink() *sink.SocketSink {
	return sink.NewSocketSink(c.name, c.conn)
}

// Close closes the connection and waits for the child to exit.
func (c *Consumer) Close() error {
	_ = c.conn.Close()

	if err := c.cmd.Wait(); err != nil {
		return tracerr.IOError(fmt.Sprintf("wait for consumer %s", c.name), err)
	}

	return nil
}
