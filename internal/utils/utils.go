package utils

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
)

var normalPadding = cli.Default.Padding

type stop struct {
	error
}

func (s stop) Unwrap() error { return s.error }

// Stop marks err as not worth retrying.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return stop{err}
}

// Retry calls f until it succeeds, returns a Stop error, ctx is done or
// attempts run out. The wait doubles (with jitter) after every failure.
func Retry(ctx context.Context, attempts int, sleep time.Duration, f func() error) error {
	err := f()
	if err == nil {
		return nil
	}
	var s stop
	if errors.As(err, &s) {
		// Return the original error for later checking
		return s.error
	}
	if attempts--; attempts <= 0 {
		return err
	}
	if sleep > 0 {
		jitter := time.Duration(rand.Int63n(int64(sleep)))
		sleep = sleep + jitter/2
	}
	log.WithError(err).Debugf("retrying in %s (%d attempts left)", sleep, attempts)
	select {
	case <-ctx.Done():
		return fmt.Errorf("gave up retrying: %w", err)
	case <-time.After(sleep):
	}
	return Retry(ctx, attempts, 2*sleep, f)
}

// ConvertStrToInt converts an input string to uint64
func ConvertStrToInt(intStr string) (uint64, error) {
	intStr = strings.ToLower(intStr)

	if strings.ContainsAny(strings.ToLower(intStr), "xabcdef") {
		intStr = strings.Replace(intStr, "0x", "", -1)
		intStr = strings.Replace(intStr, "x", "", -1)
		if out, err := strconv.ParseUint(intStr, 16, 64); err == nil {
			return out, err
		}
		log.Warn("assuming given integer is in decimal")
	}
	return strconv.ParseUint(intStr, 10, 64)
}

// Indent indents apex log line to supplied level
func Indent(f func(s string), level int) func(string) {
	return func(s string) {
		cli.Default.Padding = normalPadding * level
		f(s)
		cli.Default.Padding = normalPadding
	}
}
