// Package controller implements the file-watch based IPC bridge that
// lets a sibling process drive a running interactive instance: the
// sibling writes a command into a well-known controller file, the
// running instance notices the change by polling its mtime, hands the
// command a fresh UUID-named log file, and the sibling reads that log
// file's fixed three-line status protocol until the command reaches a
// terminal state.
package controller

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Hsyst/hps-cli/pkg/log"
)

const (
	pollInterval  = 100 * time.Millisecond
	acceptTimeout = 300 * time.Second
	resultTimeout = 300 * time.Second
)

// Status is the first line of a command's log file, and also the value
// appended as its terminal third line once the command finishes: "1"
// for success (including the still-running state, which is optimistic
// until proven otherwise), "0" for failure.
type Status string

const (
	StatusOK    Status = "1"
	StatusError Status = "0"
)

// Paths bundles the well-known filesystem locations both sides of the
// bridge agree on.
type Paths struct {
	ControllerFile string
	LogsDir        string
	PIDFile        string
}

// DefaultPaths returns the standard layout rooted at dir (the client's
// configuration directory).
func DefaultPaths(dir string) Paths {
	return Paths{
		ControllerFile: filepath.Join(dir, "controller_hpscli"),
		LogsDir:        filepath.Join(dir, "logs"),
		PIDFile:        filepath.Join(dir, "hpscli.pid"),
	}
}

// Handler executes one dispatched command, writing progress to log as it
// works and returning the final message.
type Handler func(command string, log *CommandLog) (ok bool, message string)

// Monitor watches the controller file for commands from a sibling
// process and dispatches them to Handler, one goroutine per command.
type Monitor struct {
	paths        Paths
	handler      Handler
	lastModified time.Time
	stopCh       chan struct{}
}

// NewMonitor prepares a Monitor. Call Cleanup then Start.
func NewMonitor(paths Paths, handler Handler) *Monitor {
	return &Monitor{paths: paths, handler: handler, stopCh: make(chan struct{})}
}

// Cleanup removes stale state from a previous run: it best-effort
// SIGTERMs a stale PID, removes any leftover controller file, and empties
// the logs directory. It runs before Start, so the first poll always
// observes "no controller file yet" — lastModified starts at the zero
// time, which is older than any real mtime, making that window harmless.
func (m *Monitor) Cleanup() error {
	if data, err := os.ReadFile(m.paths.PIDFile); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil {
			_ = syscall.Kill(pid, syscall.SIGTERM)
		}
	}
	_ = os.Remove(m.paths.ControllerFile)

	if err := os.MkdirAll(m.paths.LogsDir, 0o700); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}
	entries, err := os.ReadDir(m.paths.LogsDir)
	if err != nil {
		return fmt.Errorf("read logs directory: %w", err)
	}
	for _, e := range entries {
		_ = os.Remove(filepath.Join(m.paths.LogsDir, e.Name()))
	}

	return os.WriteFile(m.paths.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// Start begins the 100ms poll loop in its own goroutine.
func (m *Monitor) Start() {
	go m.loop()
}

// Stop ends the poll loop and removes the PID file.
func (m *Monitor) Stop() {
	close(m.stopCh)
	_ = os.Remove(m.paths.PIDFile)
	_ = os.Remove(m.paths.ControllerFile)
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkOnce()
		}
	}
}

func (m *Monitor) checkOnce() {
	info, err := os.Stat(m.paths.ControllerFile)
	if err != nil {
		return // no command waiting
	}
	if !info.ModTime().After(m.lastModified) {
		return
	}
	m.lastModified = info.ModTime()

	data, err := os.ReadFile(m.paths.ControllerFile)
	if err != nil {
		return
	}
	command := strings.TrimSpace(string(data))
	if command == "" {
		return
	}

	logID := uuid.NewString()
	logPath := filepath.Join(m.paths.LogsDir, logID+".log")
	cmdLog := newCommandLog(logPath)
	if err := cmdLog.writeStatus(StatusOK, "Command execution started"); err != nil {
		log.WithComponent("controller").Error().Err(err).Msg("failed to write command log")
		return
	}

	// Signal acceptance: rewrite the controller file so it points at the
	// logs directory, which is the accept marker send-side polls for.
	if err := os.WriteFile(m.paths.ControllerFile, []byte(logPath), 0o600); err != nil {
		log.WithComponent("controller").Error().Err(err).Msg("failed to signal acceptance")
		return
	}
	if info, statErr := os.Stat(m.paths.ControllerFile); statErr == nil {
		m.lastModified = info.ModTime()
	}

	go m.execute(command, cmdLog)
}

func (m *Monitor) execute(command string, cmdLog *CommandLog) {
	ok, message := m.handler(command, cmdLog)
	status := StatusOK
	if !ok {
		status = StatusError
	}
	if err := cmdLog.writeTerminal(status, message); err != nil {
		log.WithComponent("controller").Error().Err(err).Msg("failed to write terminal log line")
	}
}

// CommandLog is the fixed three-line log file protocol: a status line,
// a free-form message line, and a terminal result line (absent while
// the command is still running, "1"/"0" once it finishes).
type CommandLog struct {
	path string
}

func newCommandLog(path string) *CommandLog {
	return &CommandLog{path: path}
}

// writeStatus truncates the log to its first two lines: status and
// message. It never writes a third line, so a reader that has already
// seen a terminal result line never sees it disappear mid-poll — every
// terminal write in this package follows it immediately with
// appendResult.
func (c *CommandLog) writeStatus(status Status, message string) error {
	return os.WriteFile(c.path, []byte(string(status)+"\n"+message+"\n"), 0o600)
}

func (c *CommandLog) appendResult(result Status) error {
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(string(result) + "\n")
	return err
}

// Append records a progress message without changing status or
// terminating the command.
func (c *CommandLog) Append(message string) error {
	return c.writeStatus(StatusOK, message)
}

func (c *CommandLog) writeTerminal(status Status, message string) error {
	if err := c.writeStatus(status, message); err != nil {
		return err
	}
	return c.appendResult(status)
}

// ReadLog parses the three-line log protocol, reporting whether the
// command has reached a terminal state.
func ReadLog(path string) (status Status, message string, terminal bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", false, err
	}
	lines := strings.SplitN(string(data), "\n", 3)
	if len(lines) < 1 {
		return "", "", false, fmt.Errorf("malformed log file %s", path)
	}
	status = Status(lines[0])
	if len(lines) > 1 {
		message = lines[1]
	}
	if len(lines) > 2 {
		result := strings.TrimSpace(lines[2])
		terminal = result == string(StatusOK) || result == string(StatusError)
	}
	return status, message, terminal, nil
}

// SendCommand writes command into the controller file and blocks until
// the running instance accepts it and the command reaches a terminal
// state, or either step times out at 300s.
func SendCommand(paths Paths, command string) (status Status, message string, err error) {
	if err := os.WriteFile(paths.ControllerFile, []byte(command), 0o600); err != nil {
		return "", "", fmt.Errorf("write command: %w", err)
	}

	logPath, err := pollForAcceptance(paths)
	if err != nil {
		return "", "", err
	}

	return pollForTerminal(logPath)
}

func pollForAcceptance(paths Paths) (string, error) {
	deadline := time.Now().Add(acceptTimeout)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(paths.ControllerFile)
		if err == nil {
			content := strings.TrimSpace(string(data))
			if strings.HasPrefix(content, paths.LogsDir) {
				return content, nil
			}
		}
		time.Sleep(pollInterval)
	}
	return "", fmt.Errorf("timed out waiting for command acceptance")
}

func pollForTerminal(logPath string) (Status, string, error) {
	deadline := time.Now().Add(resultTimeout)
	for time.Now().Before(deadline) {
		status, message, terminal, err := ReadLog(logPath)
		if err == nil && terminal {
			return status, message, nil
		}
		time.Sleep(pollInterval)
	}
	return "", "", fmt.Errorf("timed out waiting for command result")
}
