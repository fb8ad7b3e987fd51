package local

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// readPid reads a pid file. Returns 0 with no error when the file does not
// exist.
func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file %s: %w", path, err)
	}
	return pid, nil
}

// writePid writes a pid file with owner-only permissions.
func writePid(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0600)
}

// processAlive reports whether a process with the given pid exists. Signal
// 0 performs the existence check without delivering anything.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// tailLines returns the last n lines of text, dropping a trailing empty
// line from a final newline.
func tailLines(text string, n int) []string {
	if text == "" || n <= 0 {
		return nil
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
