package protocol

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// HumanWriter renders events for a person watching a terminal.
type HumanWriter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// NewHumanWriter returns a HumanWriter. Raw output is only shown when
// verbose is set.
func NewHumanWriter(w io.Writer, verbose bool) *HumanWriter {
	return &HumanWriter{w: w, verbose: verbose}
}

func (h *HumanWriter) Emit(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintln(h.w, Render(e))
}

func (h *HumanWriter) Output(line string) {
	if !h.verbose {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintln(h.w, color.HiBlackString("  %s", line))
}

// Render formats one event with colour by level.
func Render(e Event) string {
	switch e.Kind {
	case KindProgress:
		return color.CyanString("[%3d%%]", e.Percent) + " " + e.Message
	case KindSuccess:
		return color.GreenString("✓ %s", e.Message)
	case KindError:
		return color.RedString("✗ %s", e.Message)
	}

	switch e.Level {
	case LevelSuccess:
		return color.GreenString("%s", e.Message)
	case LevelWarning:
		return color.YellowString("%s", e.Message)
	case LevelError:
		return color.RedString("%s", e.Message)
	default:
		return e.Message
	}
}
