package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// ReapOrphans makes a best-effort attempt to SIGKILL every process still
// in process group pgid, such as descendants left behind (and possibly
// re-parented to init) after one of our supervised children exited.
// Descendants that moved to another process group are not found.
// Platform-specific: implemented via /proc on Linux, a no-op elsewhere.
// Failures are logged and otherwise ignored, per spec.md §4.6/§9.
func ReapOrphans(pgid int, logger *slog.Logger) {
	if runtime.GOOS != "linux" {
		if logger != nil {
			logger.Debug("orphan reap skipped: unsupported platform", "os", runtime.GOOS)
		}
		return
	}
	entries, err := os.ReadDir("/proc")
	if err != nil {
		if logger != nil {
			logger.Warn("orphan reap: reading /proc failed", "error", err)
		}
		return
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		grp, err := processGroup(pid)
		if err != nil {
			continue
		}
		if grp != pgid {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && logger != nil {
			logger.Debug("orphan reap: kill failed", "pid", pid, "error", err)
		}
	}
}

// processGroup reads the process group id of pid from /proc/<pid>/stat.
func processGroup(pid int) (int, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, err
	}
	// Field 2 (comm) is parenthesized and may contain spaces/parens; find
	// the last ')' to skip past it before splitting the remaining fields.
	s := string(data)
	closeParen := strings.LastIndexByte(s, ')')
	if closeParen < 0 || closeParen+2 >= len(s) {
		return 0, fmt.Errorf("reap: malformed stat for pid %d", pid)
	}
	fields := strings.Fields(s[closeParen+2:])
	// After comm: state(0) ppid(1) pgrp(2) ...
	const pgrpIdx = 2
	if len(fields) <= pgrpIdx {
		return 0, fmt.Errorf("reap: short stat for pid %d", pid)
	}
	return strconv.Atoi(fields[pgrpIdx])
}
