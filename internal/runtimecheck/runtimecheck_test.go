package runtimecheck

import (
	"context"
	"testing"
	"time"

	"github.com/seapear/AffinityOnLinux/internal/executor"
)

type stubRunner struct {
	result executor.Result
}

func (s stubRunner) Run(ctx context.Context, cmd executor.Command, timeout time.Duration, sink executor.LineSink) executor.Result {
	return s.result
}

func TestClassify(t *testing.T) {
	tests := []struct {
		output string
		want   Status
		major  int
	}{
		{"wine-10.0", StatusOK, 10},
		{"wine-10.12 (Staging)", StatusOK, 10},
		{"wine-9.22", StatusOld, 9},
		{"wine-8.0.2", StatusOld, 8},
		{"garbage", StatusMissing, 0},
		{"", StatusMissing, 0},
	}
	for _, tt := range tests {
		got := Classify(tt.output, MinMajor)
		if got.Status != tt.want || got.Major != tt.major {
			t.Errorf("Classify(%q) = %+v, want %s major %d", tt.output, got, tt.want, tt.major)
		}
	}
}

func TestParseVersion(t *testing.T) {
	major, minor, version, ok := Parse("wine-10.4 (Staging)")
	if !ok || major != 10 || minor != 4 || version != "10.4" {
		t.Fatalf("Parse = %d %d %q %v", major, minor, version, ok)
	}
}

func TestCheckMissingBinary(t *testing.T) {
	c := &Checker{Runner: stubRunner{result: executor.Result{Err: executor.ErrStart}}}
	if got := c.Check(context.Background()); got.Status != StatusMissing {
		t.Fatalf("Check() = %+v, want missing", got)
	}
}

func TestCheckAndAtLeast(t *testing.T) {
	c := &Checker{Runner: stubRunner{result: executor.Result{OK: true, Output: "wine-10.0\n"}}}
	if got := c.Check(context.Background()); got.Status != StatusOK || got.Version != "10.0" {
		t.Fatalf("Check() = %+v", got)
	}
	if !c.AtLeast(context.Background(), 10) {
		t.Fatal("AtLeast(10) = false for wine-10.0")
	}
	if c.AtLeast(context.Background(), 11) {
		t.Fatal("AtLeast(11) = true for wine-10.0")
	}
}
