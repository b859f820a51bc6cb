//go:build windows
// +build windows

package process

import (
	"errors"
	"os"
)

// signalTerminate kills the child directly. Windows cannot deliver a
// graceful signal to another console process.
func signalTerminate(proc *os.Process) error {
	return proc.Kill()
}

func isProcessGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
