//go:build windows

package agentexec

import "os/exec"

// setProcAttr is a no-op on Windows; job-object based cleanup is not
// implemented, so descendants of an agent CLI may be orphaned on timeout.
func setProcAttr(cmd *exec.Cmd) {}

// killProcessGroup is a no-op on Windows for the same reason.
func killProcessGroup(pid int) error { return nil }
