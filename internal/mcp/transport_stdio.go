package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// maxLineSize bounds a single JSON-RPC frame read from the subprocess.
	maxLineSize = 1024 * 1024

	// DefaultCallTimeout applies when a call carries no deadline of its own.
	DefaultCallTimeout = 30 * time.Second
)

// StdioTransport speaks newline-delimited JSON-RPC 2.0 to a child process
// over its stdio pipes. Responses are demultiplexed by request id, so
// concurrent calls to the same process do not block each other.
type StdioTransport struct {
	config *ServerConfig
	logger *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *JSONRPCResponse

	connected atomic.Bool
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewStdioTransport creates a transport for the given server entry. The
// subprocess is not started until Connect.
func NewStdioTransport(config *ServerConfig, logger *slog.Logger) *StdioTransport {
	return &StdioTransport{
		config:  config,
		logger:  logger.With("component", "mcp-stdio", "server", config.ID),
		pending: make(map[string]chan *JSONRPCResponse),
	}
}

// Connect spawns the subprocess and starts the stdout demultiplexer and
// stderr drain.
func (t *StdioTransport) Connect(ctx context.Context) error {
	if t.connected.Load() {
		return nil
	}

	cmd := exec.CommandContext(ctx, t.config.Command, t.config.Args...)
	cmd.Dir = t.config.Cwd
	cmd.Env = os.Environ()
	for k, v := range t.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", t.config.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout
	t.stderr = stderr
	t.stopChan = make(chan struct{})
	t.stopOnce = sync.Once{}
	t.connected.Store(true)

	t.wg.Add(2)
	go t.readLoop()
	go t.drainStderr()

	t.logger.Info("subprocess started", "pid", cmd.Process.Pid)
	return nil
}

// Connected reports whether the subprocess is believed alive.
func (t *StdioTransport) Connected() bool {
	return t.connected.Load()
}

// Call writes the request frame and waits for the matching response. The
// timeout produces ErrCallTimeout; a dying subprocess fails all waiters
// with ErrServerDown.
func (t *StdioTransport) Call(ctx context.Context, req *JSONRPCRequest, timeout time.Duration) (*JSONRPCResponse, error) {
	if !t.connected.Load() {
		return nil, ErrNotConnected
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	respChan := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[req.ID] = respChan
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, req.ID)
		t.pendingMu.Unlock()
	}()

	if err := t.writeFrame(req); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrServerDown
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %s (method %s)", ErrCallTimeout, timeout, req.Method)
	case <-t.stopChan:
		return nil, ErrServerDown
	}
}

// Notify writes a notification frame; no response is awaited.
func (t *StdioTransport) Notify(method string, params any) error {
	if !t.connected.Load() {
		return ErrNotConnected
	}
	return t.writeFrame(&JSONRPCNotification{JSONRPC: "2.0", Method: method, Params: params})
}

func (t *StdioTransport) writeFrame(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close terminates the subprocess and fails any in-flight calls.
func (t *StdioTransport) Close() error {
	if t.cmd == nil {
		return nil
	}
	t.connected.Store(false)
	t.stopOnce.Do(func() { close(t.stopChan) })
	_ = t.stdin.Close()
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
	t.wg.Wait()
	t.failPending()
	t.logger.Info("subprocess stopped")
	return nil
}

func (t *StdioTransport) readLoop() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		t.processLine(append([]byte(nil), line...))
	}

	// Subprocess closed stdout: either we asked it to stop or it crashed.
	if t.connected.CompareAndSwap(true, false) {
		t.logger.Warn("subprocess stdout closed unexpectedly")
	}
	t.stopOnce.Do(func() { close(t.stopChan) })
	t.failPending()
}

func (t *StdioTransport) processLine(line []byte) {
	var resp JSONRPCResponse
	if err := json.Unmarshal(line, &resp); err != nil || resp.ID == "" {
		// Server-initiated notification or junk; log and move on.
		t.logger.Debug("non-response frame from server", "frame", string(line))
		return
	}
	resp.Raw = line

	t.pendingMu.Lock()
	ch, ok := t.pending[resp.ID]
	t.pendingMu.Unlock()
	if !ok {
		t.logger.Debug("response for unknown id", "id", resp.ID)
		return
	}
	select {
	case ch <- &resp:
	default:
	}
}

func (t *StdioTransport) failPending() {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
}

func (t *StdioTransport) drainStderr() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stderr)
	scanner.Buffer(make([]byte, 0, 16*1024), maxLineSize)
	for scanner.Scan() {
		t.logger.Debug("server stderr", "line", scanner.Text())
	}
}
