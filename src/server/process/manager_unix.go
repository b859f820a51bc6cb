//go:build !windows
// +build !windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// signalTerminate asks the child to exit
func signalTerminate(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}

// isProcessGone reports errors that only mean the child already exited
func isProcessGone(err error) bool {
	if errors.Is(err, os.ErrProcessDone) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESRCH || errno == syscall.ECHILD
	}
	return false
}
