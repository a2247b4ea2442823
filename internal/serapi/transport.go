// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package serapi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// transport is the byte-level connection to a prover: single-line commands
// out, NUL-delimited response units in.
type transport interface {
	// Send writes one command line.
	Send(line string) error

	// Recv returns the next response unit, blocking until one arrives,
	// the context ends, or the connection closes.
	Recv(ctx context.Context) (string, error)

	// Close tears the connection down. It is safe to call more than once.
	Close() error
}

// procTransport runs the prover as a child process. A reader goroutine owns
// stdout and splits it into NUL-delimited units; Close signals EOF on stdin
// and then kills the process, so a wedged prover cannot block shutdown.
type procTransport struct {
	proc   *exec.Cmd
	stdin  io.WriteCloser
	stderr lockedBuffer

	units      chan string
	quit       chan struct{}
	readerDone chan struct{}
	readErr    error

	closeOnce sync.Once
	closeErr  error
}

// lockedBuffer collects the prover's stderr. The exec copier writes while
// Recv may be reading, so access is serialized.
type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

// startProc spawns the prover and begins reading its output.
func startProc(bin string, args, env []string, dir string) (*procTransport, error) {
	proc := exec.Command(bin, args...)
	proc.Env = env
	proc.Dir = dir
	t := &procTransport{
		proc:       proc,
		units:      make(chan string, 64),
		quit:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	proc.Stderr = &t.stderr
	stdin, err := proc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("serapi: opening stdin pipe: %w", err)
	}
	t.stdin = stdin
	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("serapi: opening stdout pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("serapi: starting %s: %w", bin, err)
	}
	go t.read(stdout)
	return t, nil
}

// read pumps response units from stdout until the pipe closes or the
// transport shuts down.
func (t *procTransport) read(stdout io.Reader) {
	defer close(t.readerDone)
	r := bufio.NewReader(stdout)
	for {
		unit, err := r.ReadString('\x00')
		unit = strings.TrimSuffix(unit, "\x00")
		if unit != "" {
			select {
			case t.units <- unit:
			case <-t.quit:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				t.readErr = err
			}
			close(t.units)
			return
		}
	}
}

func (t *procTransport) Send(line string) error {
	_, err := io.WriteString(t.stdin, line+"\n")
	return err
}

func (t *procTransport) Recv(ctx context.Context) (string, error) {
	select {
	case unit, ok := <-t.units:
		if !ok {
			if t.readErr != nil {
				return "", fmt.Errorf("serapi: prover output: %w", t.readErr)
			}
			return "", fmt.Errorf("serapi: prover exited: %w%s", io.EOF, t.stderrTail())
		}
		return unit, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// stderrTail returns the prover's recent stderr output for error messages.
func (t *procTransport) stderrTail() string {
	s := strings.TrimSpace(t.stderr.String())
	if s == "" {
		return ""
	}
	const max = 512
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return "; stderr: " + s
}

// Close signals EOF on stdin, kills the process, and reaps it. The reader
// goroutine is drained first so the exit status can be collected safely.
// The killed process reaps with a non-zero status; only reaping failures
// are reported.
func (t *procTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.quit)
		t.stdin.Close()
		if t.proc.Process != nil {
			t.proc.Process.Kill()
		}
		<-t.readerDone
		var exitErr *exec.ExitError
		if err := t.proc.Wait(); err != nil && !errors.As(err, &exitErr) {
			t.closeErr = err
		}
	})
	return t.closeErr
}
