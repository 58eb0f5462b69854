// Package colors provides centralized color output with TTY-aware defaults.
//
// Colors are automatically disabled when stdout is not a terminal (piped or
// redirected to a file). This behavior is provided by the underlying fatih/color
// library and respected by default. Use Init() to override based on CLI flags.
package colors

import (
	"fmt"

	"github.com/fatih/color"
)

// Init allows overriding the auto-detected color setting.
//   - forceColor == nil: keep auto-detected value
//   - forceColor == true: force colors on (e.g., --color flag)
//   - forceColor == false: force colors off
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

// Enabled returns true if colors are currently enabled.
func Enabled() bool {
	return !color.NoColor
}

var (
	Header  = color.New(color.Bold, color.FgHiBlue).SprintFunc()
	Faint   = color.New(color.Faint).SprintFunc()
	Prefix  = color.New(color.Bold, color.FgHiYellow).SprintFunc()
	Secret  = color.New(color.Bold, color.FgHiGreen).SprintFunc()
	Failure = color.New(color.Bold, color.FgHiRed).SprintFunc()
)

// Symbol renders a candidate symbol so whitespace and quotes stay visible.
func Symbol(r rune) string {
	return fmt.Sprintf("%q", r)
}

// Score colors one step score: chosen symbols stand out, timeouts are dimmed
// red and everything else is plain.
func Score(text string, chosen, timedOut bool) string {
	switch {
	case timedOut:
		return color.New(color.Faint, color.FgRed).Sprint(text)
	case chosen:
		return color.New(color.Bold, color.FgHiGreen).Sprint(text)
	}
	return text
}
