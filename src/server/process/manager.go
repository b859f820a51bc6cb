package process

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"agents-ide/src/internal/common"
	"agents-ide/src/internal/constants"
)

const stderrDrainWait = 200 * time.Millisecond

// Config describes the language server command to launch
type Config struct {
	Command string
	Args    []string
	// Dir is the working directory; empty means the current directory
	Dir string
	// Env entries (KEY=VALUE) appended to the parent environment
	Env []string
	// ShutdownTimeout is the grace period between the terminate signal and
	// a forced kill. Zero means constants.ProcessShutdownTimeout.
	ShutdownTimeout time.Duration
}

// CommandLine renders the command for logs and errors
func (c Config) CommandLine() string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}

// Process is a running language server with its stdio pipes. Stdout and
// stderr are plain OS pipes owned by the parent, so reaping the child never
// closes a reader that the dispatch loop is still using.
type Process struct {
	cfg    Config
	cmd    *exec.Cmd
	logger *common.SafeLogger

	writeMu sync.Mutex
	stdin   io.WriteCloser
	stdout  *os.File
	stderr  *os.File

	done    chan struct{}
	exitErr error

	stderrDone chan struct{}
	tailMu     sync.Mutex
	tail       []string

	terminateOnce sync.Once
}

// Spawn starts the child process and its stderr and reaper goroutines
func Spawn(cfg Config) (*Process, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("language server command is empty")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = constants.ProcessShutdownTimeout
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdin.Close()
		for _, f := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			f.Close()
		}
		return nil, fmt.Errorf("failed to start language server %s: %w", cfg.Command, err)
	}
	// The child holds its own copies of the write ends
	stdoutW.Close()
	stderrW.Close()

	p := &Process{
		cfg:        cfg,
		cmd:        cmd,
		logger:     common.LSPLogger.With("pid", cmd.Process.Pid),
		stdin:      stdin,
		stdout:     stdoutR,
		stderr:     stderrR,
		done:       make(chan struct{}),
		stderrDone: make(chan struct{}),
	}
	p.logger.Info("Started language server: %s", cfg.CommandLine())

	go p.readStderr()
	go p.reap()
	return p, nil
}

func (p *Process) reap() {
	err := p.cmd.Wait()
	p.exitErr = err
	// Let the last stderr lines land in the tail before reporting the exit
	select {
	case <-p.stderrDone:
	case <-time.After(stderrDrainWait):
	}
	close(p.done)
	if err != nil {
		p.logger.Debug("Language server exited: %v", err)
	} else {
		p.logger.Debug("Language server exited normally")
	}
}

// readStderr logs server diagnostics and keeps the last few lines. Stderr
// is never parsed as protocol data.
func (p *Process) readStderr() {
	defer close(p.stderrDone)
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		p.appendTail(line)
		if looksLikeError(line) {
			p.logger.Warn("stderr: %s", common.SanitizeErrorForLogging(line))
		} else {
			p.logger.Debug("stderr: %s", line)
		}
	}
}

func looksLikeError(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "error") ||
		strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "exception") ||
		strings.Contains(lower, "traceback")
}

func (p *Process) appendTail(line string) {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	p.tail = append(p.tail, line)
	if over := len(p.tail) - constants.StderrTailLines; over > 0 {
		p.tail = append(p.tail[:0], p.tail[over:]...)
	}
}

// StderrTail returns a copy of the most recent stderr lines
func (p *Process) StderrTail() []string {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	out := make([]string, len(p.tail))
	copy(out, p.tail)
	return out
}

// PID returns the child's process id
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Command returns the configured command line
func (p *Process) Command() string {
	return p.cfg.CommandLine()
}

// Write sends b to the child's stdin in one piece. Concurrent writes are
// serialized so frames never interleave.
func (p *Process) Write(b []byte) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	select {
	case <-p.done:
		return 0, fmt.Errorf("write to exited language server: %w", os.ErrClosed)
	default:
	}
	return p.stdin.Write(b)
}

// Stdout is the sequential byte source the decoder reads from
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Done is closed once the child has been reaped
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the wait status once Done is closed, nil before that or
// on a clean exit
func (p *Process) ExitErr() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

// Exited reports whether the child has been reaped
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Terminate stops the child: stdin is closed, a terminate signal is sent,
// and the child is killed if it outlives the grace period. It is safe to
// call more than once and on a process that already exited.
func (p *Process) Terminate() {
	p.terminateOnce.Do(func() {
		p.stdin.Close()

		if !p.Exited() {
			if err := signalTerminate(p.cmd.Process); err != nil && !isProcessGone(err) {
				p.logger.Debug("terminate signal failed: %v", err)
			}
			select {
			case <-p.done:
			case <-time.After(p.cfg.ShutdownTimeout):
				p.logger.Warn("Language server did not exit within %v, force killing", p.cfg.ShutdownTimeout)
				if err := p.cmd.Process.Kill(); err != nil && !isProcessGone(err) {
					p.logger.Error("Failed to kill language server: %v", err)
				}
				select {
				case <-p.done:
				case <-time.After(p.cfg.ShutdownTimeout):
					p.logger.Error("Language server still running after kill")
				}
			}
		}

		// Unblocks readers when a grandchild inherited the pipes
		p.stdout.Close()
		select {
		case <-p.stderrDone:
		case <-time.After(stderrDrainWait):
		}
		p.stderr.Close()
	})
}
