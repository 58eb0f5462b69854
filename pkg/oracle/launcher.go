package oracle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/caarlos0/env/v8"
)

// ErrEngineNotConfigured is returned when no engine install root could be resolved.
var ErrEngineNotConfigured = errors.New("couldn't find pin: set the PIN_HOME environment variable or pass --pinhome")

// Launcher turns a target, its arguments and an observer into an engine command line.
type Launcher interface {
	Command(target string, args []string, observer string) (string, []string, error)
}

type pinEnv struct {
	Home string `env:"PIN_HOME"`
}

// ResolvePinHome returns explicit if set, otherwise the PIN_HOME environment variable.
func ResolvePinHome(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	var e pinEnv
	if err := env.Parse(&e); err != nil {
		return "", fmt.Errorf("failed to parse environment: %w", err)
	}
	if e.Home == "" {
		return "", ErrEngineNotConfigured
	}
	return e.Home, nil
}

// Pin launches targets under Intel Pin with the Python bridge tool.
type Pin struct {
	Home   string
	Bridge string // defaults to <Home>/source/tools/Python_Pin/obj-ia32/Python_Pin.so
}

// NewPin resolves the Pin install root (explicit first, then PIN_HOME).
func NewPin(home, bridge string) (*Pin, error) {
	home, err := ResolvePinHome(home)
	if err != nil {
		return nil, err
	}
	return &Pin{Home: home, Bridge: bridge}, nil
}

// Executable returns the pin driver path.
func (p *Pin) Executable() string {
	return filepath.Join(p.Home, "pin")
}

// BridgePath returns the pintool that hosts observer scripts.
func (p *Pin) BridgePath() string {
	if p.Bridge != "" {
		return p.Bridge
	}
	return filepath.Join(p.Home, "source", "tools", "Python_Pin", "obj-ia32", "Python_Pin.so")
}

// Command returns: pin -t <bridge> -m <observer> -- <target> [args...]
func (p *Pin) Command(target string, args []string, observer string) (string, []string, error) {
	if p.Home == "" {
		return "", nil, ErrEngineNotConfigured
	}
	argv := []string{"-t", p.BridgePath(), "-m", observer, "--", target}
	argv = append(argv, args...)
	return p.Executable(), argv, nil
}

// Native launches targets under this program's own pedal command.
type Native struct {
	Executable string // defaults to os.Executable()
	Engine     string // ptrace, unicorn or frida
	Start      uint64
	End        uint64   // 0 means the end of the address space
	Extra      []string // engine specific flags, placed before the separator
}

// Command returns: <exe> pedal --engine <e> -m <observer> [--start s --end e] -- <target> [args...]
func (n *Native) Command(target string, args []string, observer string) (string, []string, error) {
	exe := n.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return "", nil, fmt.Errorf("failed to locate unicycle executable: %w", err)
		}
	}
	engine := n.Engine
	if engine == "" {
		engine = "ptrace"
	}
	end := n.End
	if end == 0 {
		end = ^uint64(0)
	}
	argv := []string{"pedal", "--engine", engine, "-m", observer}
	if n.Start != 0 || end != ^uint64(0) {
		argv = append(argv,
			"--start", "0x"+strconv.FormatUint(n.Start, 16),
			"--end", "0x"+strconv.FormatUint(end, 16))
	}
	argv = append(argv, n.Extra...)
	argv = append(argv, "--", target)
	argv = append(argv, args...)
	return exe, argv, nil
}
