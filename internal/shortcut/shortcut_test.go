package shortcut

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEntryQuotesExecArguments(t *testing.T) {
	entry := Entry("/home/u/.AffinityOnLinux", `/home/u/.AffinityOnLinux/drive_c/Program Files/Affinity/Affinity.exe`, "/icons/a.svg")

	want := `Exec=env WINEPREFIX="/home/u/.AffinityOnLinux" wine "/home/u/.AffinityOnLinux/drive_c/Program Files/Affinity/Affinity.exe"`
	if !strings.Contains(entry, want+"\n") {
		t.Fatalf("entry missing %q:\n%s", want, entry)
	}
	for _, line := range []string{"[Desktop Entry]", "Type=Application", "Icon=/icons/a.svg", "StartupWMClass=affinity.exe"} {
		if !strings.Contains(entry, line) {
			t.Errorf("entry missing %q", line)
		}
	}
}

func TestExecQuoteEscapes(t *testing.T) {
	if got := execQuote(`a"b$c`); got != `"a\"b\$c"` {
		t.Fatalf("execQuote = %s", got)
	}
}

func TestCreateAndRemove(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<svg/>"))
	}))
	defer srv.Close()

	c := NewCreator(t.TempDir())
	c.Runner = nil
	c.Client = srv.Client()
	c.IconURL = srv.URL

	path, err := c.Create(context.Background(), "/prefix", "/prefix/drive_c/Affinity.exe")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if filepath.Base(path) != EntryName {
		t.Fatalf("path = %q", path)
	}
	if data, err := os.ReadFile(c.IconPath()); err != nil || string(data) != "<svg/>" {
		t.Fatalf("icon = %q, %v", data, err)
	}

	other := filepath.Join(c.ApplicationsDir(), "affinity-photo.desktop")
	os.WriteFile(other, []byte("x"), 0o644)
	unrelated := filepath.Join(c.ApplicationsDir(), "gimp.desktop")
	os.WriteFile(unrelated, []byte("x"), 0o644)

	removed, err := c.Remove(context.Background())
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed = %v", removed)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatal("unrelated entry was removed")
	}
}

func TestCreateSurvivesIconFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewCreator(t.TempDir())
	c.Runner = nil
	c.Client = srv.Client()
	c.IconURL = srv.URL

	if _, err := c.Create(context.Background(), "/prefix", "/prefix/Affinity.exe"); err != nil {
		t.Fatalf("Create: %v", err)
	}
}
