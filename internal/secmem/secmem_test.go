package secmem

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWriteLineAppendsNewline(t *testing.T) {
	s := NewSecretString("hunter2")
	var buf bytes.Buffer
	if err := s.WriteLine(&buf); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if buf.String() != "hunter2\n" {
		t.Fatalf("WriteLine wrote %q, want %q", buf.String(), "hunter2\n")
	}
}

func TestWriteLineOnNil(t *testing.T) {
	var s *Secret
	if err := s.WriteLine(&bytes.Buffer{}); !errors.Is(err, ErrZeroed) {
		t.Fatalf("nil WriteLine err = %v, want ErrZeroed", err)
	}
}

func TestWriteLineAfterZero(t *testing.T) {
	s := NewSecretString("secret")
	s.Zero()
	var buf bytes.Buffer
	if err := s.WriteLine(&buf); !errors.Is(err, ErrZeroed) {
		t.Fatalf("WriteLine after Zero err = %v, want ErrZeroed", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("WriteLine after Zero wrote %q", buf.String())
	}
}

func TestNewSecretTakesOwnership(t *testing.T) {
	b := []byte("pw")
	s := NewSecret(b)
	s.Zero()
	for i, c := range b {
		if c != 0 {
			t.Fatalf("byte %d = %d after Zero, want 0", i, c)
		}
	}
}

func TestIsZeroed(t *testing.T) {
	s := NewSecretString("token")
	if s.IsZeroed() {
		t.Fatal("IsZeroed() = true before Zero()")
	}
	s.Zero()
	if !s.IsZeroed() {
		t.Fatal("IsZeroed() = false after Zero()")
	}
	if s.Len() != 0 {
		t.Fatalf("Len() after Zero = %d, want 0", s.Len())
	}
}

func TestIsZeroedOnNil(t *testing.T) {
	var s *Secret
	if s.IsZeroed() {
		t.Fatal("nil IsZeroed() = true, want false")
	}
}

func TestFormatAllVerbsRedacted(t *testing.T) {
	s := NewSecretString("secret")

	tests := []struct {
		format string
		name   string
	}{
		{"%s", "percent-s"},
		{"%v", "percent-v"},
		{"%+v", "percent-plus-v"},
		{"%#v", "percent-hash-v"},
		{"%q", "percent-q"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fmt.Sprintf(tt.format, s); got != "[REDACTED]" {
				t.Errorf("fmt.Sprintf(%q, s) = %q, want [REDACTED]", tt.format, got)
			}
		})
	}
}

func TestMarshalJSONInStruct(t *testing.T) {
	type request struct {
		Password *Secret `json:"password"`
		User     string  `json:"user"`
	}
	data, err := json.Marshal(request{Password: NewSecretString("secret"), User: "alice"})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if bytes.Contains(data, []byte("secret")) {
		t.Fatalf("plaintext leaked into JSON: %s", data)
	}
	var parsed map[string]any
	json.Unmarshal(data, &parsed)
	if parsed["password"] != "[REDACTED]" {
		t.Fatalf("password in JSON = %v, want [REDACTED]", parsed["password"])
	}
}

func TestMarshalTextReturnsRedacted(t *testing.T) {
	data, err := NewSecretString("secret").MarshalText()
	if err != nil {
		t.Fatalf("MarshalText error: %v", err)
	}
	if string(data) != "[REDACTED]" {
		t.Fatalf("MarshalText = %q, want [REDACTED]", data)
	}
}

func TestUnmarshalJSONRejects(t *testing.T) {
	var s Secret
	if err := json.Unmarshal([]byte(`"should-fail"`), &s); err == nil {
		t.Fatal("UnmarshalJSON should return an error")
	}
}

func TestZapFieldIsRedacted(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	zap.New(core).Info("credential", zap.Stringer("secret", NewSecretString("hunter2")), zap.Any("any", NewSecretString("hunter2")))

	for _, entry := range logs.All() {
		for k, v := range entry.ContextMap() {
			if fmt.Sprint(v) == "hunter2" {
				t.Fatalf("field %s leaked plaintext", k)
			}
		}
	}
}

func TestZeroOnNilDoesNotPanic(t *testing.T) {
	var s *Secret
	s.Zero()
}

func TestConcurrentWriteLineAndZero(t *testing.T) {
	s := NewSecretString("concurrent-test")
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf bytes.Buffer
			_ = s.WriteLine(&buf)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Zero()
	}()

	wg.Wait()

	if err := s.WriteLine(&bytes.Buffer{}); !errors.Is(err, ErrZeroed) {
		t.Fatalf("WriteLine after concurrent Zero err = %v, want ErrZeroed", err)
	}
}

func TestWarnedOnceAfterZero(t *testing.T) {
	s := NewSecretString("secret")
	_ = s.WriteLine(&bytes.Buffer{})
	if s.warnedOnce.Load() {
		t.Fatal("warnedOnce should be false while the secret is alive")
	}
	s.Zero()
	_ = s.WriteLine(&bytes.Buffer{})
	_ = s.WriteLine(&bytes.Buffer{})
	if !s.warnedOnce.Load() {
		t.Fatal("warnedOnce should be true after use post-Zero")
	}
}
