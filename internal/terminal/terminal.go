// Package terminal provides terminal detection and credential input.
package terminal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/seapear/AffinityOnLinux/internal/secmem"
)

// ErrEmptySecret is returned when no credential was entered.
var ErrEmptySecret = errors.New("empty credential")

// maxSecretLen bounds a credential read from a pipe.
const maxSecretLen = 4096

// IsInteractive reports whether stdin and stdout are both interactive terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// ReadSecret prompts on out and reads a line from the terminal in without
// echo.
func ReadSecret(in *os.File, out io.Writer, prompt string) (*secmem.Secret, error) {
	fmt.Fprint(out, prompt)
	data, err := term.ReadPassword(int(in.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptySecret
	}
	return secmem.NewSecret(data), nil
}

// ReadSecretLine reads one line from r, as used when the credential arrives
// on a pipe. The trailing newline is dropped and the read buffer zeroed.
func ReadSecretLine(r io.Reader) (*secmem.Secret, error) {
	br := bufio.NewReaderSize(io.LimitReader(r, maxSecretLen+1), maxSecretLen+1)
	line, err := br.ReadSlice('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		clear(line)
		return nil, fmt.Errorf("read credential: %w", err)
	}

	trimmed := bytes.TrimRight(line, "\r\n")
	if len(trimmed) == 0 {
		clear(line)
		return nil, ErrEmptySecret
	}
	data := make([]byte, len(trimmed))
	copy(data, trimmed)
	clear(line)
	return secmem.NewSecret(data), nil
}
