package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rockerboo/lsp-proxy/internal/logger"
)

// StdioTransport runs a language server as a child process and speaks
// the wire protocol over its stdin/stdout pipes.
type StdioTransport struct {
	command string
	args    []string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *eofTrackingReader
	connected bool
}

func NewStdioTransport(command string, args []string) *StdioTransport {
	return &StdioTransport{command: command, args: args}
}

func (t *StdioTransport) Connect(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, t.command, t.args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdio transport %s: stdin pipe: %w", t.Name(), err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdio transport %s: stdout pipe: %w", t.Name(), err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("stdio transport %s: start: %w", t.Name(), err)
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.stdout = newEOFTrackingReader(stdout)
	t.connected = true
	t.mu.Unlock()

	logger.Infof("stdio transport %s: started pid %d", t.Name(), cmd.Process.Pid)
	return nil
}

func (t *StdioTransport) Reader() io.Reader {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stdout
}

func (t *StdioTransport) Writer() io.Writer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stdin
}

func (t *StdioTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *StdioTransport) AtEndOfInput() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stdout == nil {
		return false
	}
	return t.stdout.atEOF()
}

func (t *StdioTransport) Disconnect() error {
	t.mu.Lock()
	cmd := t.cmd
	stdin := t.stdin
	t.connected = false
	t.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func (t *StdioTransport) Wait() error {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	if cmd == nil {
		return nil
	}
	err := cmd.Wait()
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return err
}

func (t *StdioTransport) Name() string {
	if len(t.args) == 0 {
		return t.command
	}
	return fmt.Sprintf("%s %s", t.command, strings.Join(t.args, " "))
}
