// SPDX-License-Identifier: MPL-2.0

//go:build windows

package chatops

import (
	"io"
	"os"
	"os/exec"
)

// startPty launches the console's shell without a pseudo-terminal. Windows
// offers no PTY here, so the shell borrows the server process's stdio and
// the session only drives stdin.
func startPty(cmd *exec.Cmd) (*os.File, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return os.NewFile(stdin.(*os.File).Fd(), "stdin"), nil
}

// setWinsize is a no-op without a PTY; window-change notifications from the
// SSH session are dropped.
func setWinsize(_ *os.File, _, _ int) {}

// copyBuffer pumps bytes between the SSH session and the shell.
func copyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}
