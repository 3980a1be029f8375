//go:build !windows

package utils

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// GracefulTerminate asks the process to exit.
func GracefulTerminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

// IsProcessAlive reports whether pid refers to a running process.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)

	return err == nil || err == unix.EPERM
}

// FindProcessesByName returns the pids whose executable base name matches name,
// compared case-insensitively.
func FindProcessesByName(name string) ([]int, error) {
	if runtime.GOOS != "linux" {
		return findWithPS(name)
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if matchesProcess(pid, name) {
			pids = append(pids, pid)
		}
	}

	return pids, nil
}

func matchesProcess(pid int, name string) bool {
	dir := filepath.Join("/proc", strconv.Itoa(pid))
	if exe, err := os.Readlink(filepath.Join(dir, "exe")); err == nil && strings.EqualFold(filepath.Base(exe), name) {
		return true
	}

	// wine processes show up as the loader, the windows path is in argv[0]
	cmdline, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil || len(cmdline) == 0 {
		return false
	}
	argv0, _, _ := strings.Cut(string(cmdline), "\x00")
	argv0 = strings.ReplaceAll(argv0, `\`, "/")

	return strings.EqualFold(filepath.Base(argv0), name)
}

func findWithPS(name string) ([]int, error) {
	out, err := exec.Command("ps", "-axo", "pid=,comm=").Output()
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if !strings.EqualFold(filepath.Base(strings.Join(fields[1:], " ")), name) {
			continue
		}
		if pid, err := strconv.Atoi(fields[0]); err == nil {
			pids = append(pids, pid)
		}
	}

	return pids, nil
}
