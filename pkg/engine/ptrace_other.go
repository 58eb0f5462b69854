//go:build !linux || !(amd64 || arm64)

package engine

import (
	"fmt"
	"runtime"
)

func init() {
	Register("ptrace", func(*Config) (Engine, error) {
		return nil, fmt.Errorf("the ptrace engine is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
	})
}
