package secmem

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/seapear/AffinityOnLinux/internal/logging"
)

var log = logging.L("secmem")

// ErrZeroed is returned when a wiped secret is used.
var ErrZeroed = errors.New("secmem: secret has been zeroed")

// Secret holds the elevation credential with best-effort memory hygiene.
// The backing array is mlock'ed where permitted so it is not swapped out,
// and Zero overwrites it in place. Go's GC may still copy the bytes, so
// callers must Zero on every exit path rather than rely on this alone.
//
// Every formatter returns [REDACTED]. The only way to use the plaintext is
// WriteLine, which hands it straight to a subprocess stdin.
type Secret struct {
	mu         sync.Mutex
	data       []byte
	locked     bool
	zeroed     atomic.Bool
	warnedOnce atomic.Bool
}

// NewSecret takes ownership of b; the caller must not reuse it.
func NewSecret(b []byte) *Secret {
	s := &Secret{data: b}
	if len(b) > 0 {
		if err := unix.Mlock(b); err == nil {
			s.locked = true
		} else {
			log.Debug("mlock unavailable for secret")
		}
	}
	return s
}

// NewSecretString copies str into a new Secret.
func NewSecretString(str string) *Secret {
	b := make([]byte, len(str))
	copy(b, str)
	return NewSecret(b)
}

// WriteLine writes the secret followed by a newline to w.
func (s *Secret) WriteLine(w io.Writer) error {
	if s == nil {
		return ErrZeroed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil && s.zeroed.Load() {
		if s.warnedOnce.CompareAndSwap(false, true) {
			log.Warn("secret used after Zero()")
		}
		return ErrZeroed
	}

	buf := make([]byte, len(s.data)+1)
	copy(buf, s.data)
	buf[len(s.data)] = '\n'
	_, err := w.Write(buf)
	for i := range buf {
		buf[i] = 0
	}
	return err
}

// Len returns the length of the plaintext, or 0 once zeroed.
func (s *Secret) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// IsZeroed returns true if Zero() has been called.
func (s *Secret) IsZeroed() bool {
	if s == nil {
		return false
	}
	return s.zeroed.Load()
}

// Zero overwrites the backing byte slice with zeros and releases the lock.
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data {
		s.data[i] = 0
	}
	if s.locked {
		_ = unix.Munlock(s.data)
		s.locked = false
	}
	s.data = nil
	s.zeroed.Store(true)
}

// String returns [REDACTED].
func (s *Secret) String() string {
	return "[REDACTED]"
}

// GoString returns [REDACTED] for %#v.
func (s *Secret) GoString() string {
	return "[REDACTED]"
}

// Format implements fmt.Formatter so every verb produces [REDACTED].
func (s *Secret) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, "[REDACTED]")
}

// MarshalJSON returns "[REDACTED]".
func (s *Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal("[REDACTED]")
}

// MarshalText returns [REDACTED].
func (s *Secret) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// UnmarshalJSON rejects deserialization into a Secret.
func (s *Secret) UnmarshalJSON(data []byte) error {
	return fmt.Errorf("secmem: cannot deserialize into Secret")
}
