//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package ride

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
