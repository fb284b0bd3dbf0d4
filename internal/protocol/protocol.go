// Package protocol defines the line-oriented status stream a worker writes
// to its supervisor:
//
//	PROGRESS:<0-100>:<message>
//	SUCCESS:<message>
//	ERROR:<message>
//	INFO:<message>
//	INFO:⚠ <message>    (warning)
//
// Any other line is raw subprocess output. Decoding never fails.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	prefixProgress = "PROGRESS:"
	prefixSuccess  = "SUCCESS:"
	prefixError    = "ERROR:"
	prefixInfo     = "INFO:"

	warningMark = "⚠ "

	// rawIndent is prepended to subprocess output so it can never be read
	// back as a structured line.
	rawIndent = "  "
)

// Kind is the structured type of an event.
type Kind int

const (
	KindInfo Kind = iota
	KindProgress
	KindSuccess
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	default:
		return "info"
	}
}

// Level is the display severity of an event.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Event is one status record.
type Event struct {
	Kind    Kind   `json:"kind"`
	Percent int    `json:"percent,omitempty"`
	Message string `json:"message"`
	Level   Level  `json:"level"`
	// Raw is set for lines that carried no recognised prefix.
	Raw bool `json:"raw,omitempty"`
}

// Progress returns a progress event.
func Progress(percent int, msg string) Event {
	return Event{Kind: KindProgress, Percent: clamp(percent), Message: msg, Level: LevelInfo}
}

// Success returns a terminal success event.
func Success(msg string) Event {
	return Event{Kind: KindSuccess, Message: msg, Level: LevelSuccess}
}

// Error returns a terminal failure event.
func Error(msg string) Event {
	return Event{Kind: KindError, Message: msg, Level: LevelError}
}

// Info returns an informational event.
func Info(msg string) Event {
	return Event{Kind: KindInfo, Message: msg, Level: LevelInfo}
}

// Warning returns an informational event displayed as a warning.
func Warning(msg string) Event {
	return Event{Kind: KindInfo, Message: msg, Level: LevelWarning}
}

// Encode renders e as a single protocol line without the trailing newline.
func Encode(e Event) string {
	msg := singleLine(e.Message)
	switch e.Kind {
	case KindProgress:
		return prefixProgress + strconv.Itoa(clamp(e.Percent)) + ":" + msg
	case KindSuccess:
		return prefixSuccess + msg
	case KindError:
		return prefixError + msg
	default:
		if e.Level == LevelWarning && !strings.HasPrefix(msg, warningMark) {
			msg = warningMark + msg
		}
		return prefixInfo + msg
	}
}

// EncodeRaw renders subprocess output as a raw line.
func EncodeRaw(line string) string {
	return rawIndent + singleLine(line)
}

// Decode parses one line. Malformed progress lines and unprefixed lines
// decode as Info; the message keeps any colons it contains.
func Decode(line string) Event {
	line = strings.TrimRight(line, "\r\n")

	switch {
	case strings.HasPrefix(line, prefixProgress):
		rest := strings.TrimPrefix(line, prefixProgress)
		pctText, msg, _ := strings.Cut(rest, ":")
		pct, err := strconv.Atoi(strings.TrimSpace(pctText))
		if err != nil || pct < 0 || pct > 100 {
			return raw(line)
		}
		return Event{Kind: KindProgress, Percent: pct, Message: msg, Level: LevelInfo}
	case strings.HasPrefix(line, prefixSuccess):
		return Success(strings.TrimPrefix(line, prefixSuccess))
	case strings.HasPrefix(line, prefixError):
		return Error(strings.TrimPrefix(line, prefixError))
	case strings.HasPrefix(line, prefixInfo):
		msg := strings.TrimPrefix(line, prefixInfo)
		if strings.HasPrefix(msg, warningMark) {
			return Warning(strings.TrimPrefix(msg, warningMark))
		}
		return Info(msg)
	default:
		return raw(strings.TrimPrefix(line, rawIndent))
	}
}

// Classify guesses a display level for free-form output.
func Classify(msg string) Level {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "✓") || strings.Contains(lower, "success"):
		return LevelSuccess
	case strings.Contains(msg, "✗") || strings.Contains(lower, "error") || strings.Contains(lower, "failed"):
		return LevelError
	case strings.Contains(msg, "⚠") || strings.Contains(lower, "warning"):
		return LevelWarning
	default:
		return LevelInfo
	}
}

func (e Event) String() string {
	if e.Kind == KindProgress {
		return fmt.Sprintf("%s %d%% %s", e.Kind, e.Percent, e.Message)
	}
	return e.Kind.String() + " " + e.Message
}

func raw(msg string) Event {
	return Event{Kind: KindInfo, Message: msg, Level: Classify(msg), Raw: true}
}

func singleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
