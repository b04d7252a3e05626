package controller

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupCreatesLogsDirAndPIDFile(t *testing.T) {
	dir := t.TempDir()
	paths := DefaultPaths(dir)

	m := NewMonitor(paths, func(cmd string, l *CommandLog) (bool, string) { return true, "ok" })
	require.NoError(t, m.Cleanup())

	assert.DirExists(t, paths.LogsDir)
	assert.FileExists(t, paths.PIDFile)
}

func TestMonitorAcceptsAndCompletesCommand(t *testing.T) {
	dir := t.TempDir()
	paths := DefaultPaths(dir)

	m := NewMonitor(paths, func(cmd string, l *CommandLog) (bool, string) {
		return true, "handled: " + cmd
	})
	require.NoError(t, m.Cleanup())
	m.Start()
	t.Cleanup(m.Stop)

	status, message, err := SendCommand(paths, "stats")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
	assert.Contains(t, message, "stats")
}

func TestMonitorReportsHandlerFailure(t *testing.T) {
	dir := t.TempDir()
	paths := DefaultPaths(dir)

	m := NewMonitor(paths, func(cmd string, l *CommandLog) (bool, string) {
		return false, "boom"
	})
	require.NoError(t, m.Cleanup())
	m.Start()
	t.Cleanup(m.Stop)

	status, message, err := SendCommand(paths, "bad-command")
	require.NoError(t, err)
	assert.Equal(t, StatusError, status)
	assert.Equal(t, "boom", message)
}

func TestReadLogParsesThreeLineFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.log")
	cl := newCommandLog(path)
	require.NoError(t, cl.writeTerminal(StatusOK, "all good"))

	status, message, terminal, err := ReadLog(path)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, "all good", message)
	assert.True(t, terminal)
}

func TestMonitorIgnoresUnmodifiedControllerFile(t *testing.T) {
	dir := t.TempDir()
	paths := DefaultPaths(dir)

	calls := 0
	m := NewMonitor(paths, func(cmd string, l *CommandLog) (bool, string) {
		calls++
		return true, "ok"
	})
	require.NoError(t, m.Cleanup())
	m.Start()
	t.Cleanup(m.Stop)

	_, _, err := SendCommand(paths, "network")
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, calls)
}
