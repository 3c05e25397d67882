// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package chatops

import (
	"io"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"github.com/creack/pty"
)

// startPty launches the console's shell on a fresh pseudo-terminal. The
// returned file is the PTY master; the SSH session reads and writes the
// shell through it.
func startPty(cmd *exec.Cmd) (*os.File, error) {
	return pty.Start(cmd)
}

// setWinsize forwards an SSH window-change notification to the shell's PTY.
func setWinsize(f *os.File, width, height int) {
	syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), uintptr(syscall.TIOCSWINSZ),
		uintptr(unsafe.Pointer(&struct {
			h, w, x, y uint16
		}{uint16(height), uint16(width), 0, 0})))
}

// copyBuffer pumps bytes between the SSH session and the shell's PTY.
func copyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}
