package solver

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/blacktop/unicycle/pkg/ride"
)

// SuccessFunc reports whether a ride shows the target accepted the input.
type SuccessFunc func(*ride.Result) bool

// Stream selects which output of a ride a test inspects.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// ParseStream parses "stdout" or "stderr".
func ParseStream(name string) (Stream, error) {
	switch strings.ToLower(name) {
	case "stdout", "out", "":
		return Stdout, nil
	case "stderr", "err":
		return Stderr, nil
	}
	return Stdout, fmt.Errorf("unknown stream %q (expected stdout or stderr)", name)
}

func (s Stream) of(res *ride.Result) []byte {
	if s == Stderr {
		return res.Stderr
	}
	return res.Stdout
}

// NotContains succeeds when the stream lacks the failure marker.
func NotContains(stream Stream, marker string) SuccessFunc {
	return func(res *ride.Result) bool {
		return !bytes.Contains(stream.of(res), []byte(marker))
	}
}

// Contains succeeds when the stream has the success marker.
func Contains(stream Stream, marker string) SuccessFunc {
	return func(res *ride.Result) bool {
		return bytes.Contains(stream.of(res), []byte(marker))
	}
}

// ExitCode succeeds when the target exits with rc.
func ExitCode(rc int) SuccessFunc {
	return func(res *ride.Result) bool {
		return res.ExitCode == rc
	}
}

// All succeeds when every test does. No tests never succeeds.
func All(tests ...SuccessFunc) SuccessFunc {
	return func(res *ride.Result) bool {
		if len(tests) == 0 {
			return false
		}
		for _, t := range tests {
			if !t(res) {
				return false
			}
		}
		return true
	}
}
