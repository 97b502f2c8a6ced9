package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
)

type staticToken struct{ tok string }

func (s staticToken) Token(ctx context.Context) (string, error) { return s.tok, nil }

// fakeScannerScript writes a tiny shell script that plays the scanner wire
// protocol for a scripted sequence of responses, one per line read, so the
// supervisor and round-trip logic can be exercised without a real remote
// document store.
func fakeScannerScript(t *testing.T, responses []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake_scanner.sh")
	script := "#!/bin/sh\n"
	for _, r := range responses {
		script += "read line\n"
		script += "echo '" + r + "'\n"
	}
	script += "exit 1\n" // simulate a crash once the scripted responses are exhausted
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanHappyPath(t *testing.T) {
	resp := `{"status":"ok","items":[{"item_id":"i1","drive_id":"d1","name":"Koch_FOB_2026.docx","size":145320,"sha256":"a1b2"}]}`
	path := fakeScannerScript(t, []string{resp})
	s := New(logger.New(logger.ModeDev), Config{BinaryPath: "/bin/sh", Args: []string{path}, CommandTimeout: 2 * time.Second}, staticToken{tok: "tok"})
	defer s.Close()

	items, err := s.Scan(context.Background(), "d1", "/contracts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ItemID != "i1" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestDiffHashesClassifiesMissingHashAsChanged(t *testing.T) {
	resp := `{"status":"ok","changed":["c1"],"unchanged":["c2"],"missing":[]}`
	path := fakeScannerScript(t, []string{resp})
	s := New(logger.New(logger.ModeDev), Config{BinaryPath: "/bin/sh", Args: []string{path}, CommandTimeout: 2 * time.Second}, staticToken{tok: "tok"})
	defer s.Close()

	diff, err := s.DiffHashes(context.Background(), []KnownItem{{ID: "c1", Hash: ""}, {ID: "c2", Hash: "h2"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diff.Changed) != 1 || diff.Changed[0] != "c1" {
		t.Fatalf("unexpected diff: %+v", diff)
	}
}

func TestTokenErrorFailsBeforeSend(t *testing.T) {
	path := fakeScannerScript(t, []string{`{"status":"ok","items":[]}`})
	s := New(logger.New(logger.ModeDev), Config{BinaryPath: "/bin/sh", Args: []string{path}, CommandTimeout: 2 * time.Second}, failingToken{})
	defer s.Close()

	_, err := s.Scan(context.Background(), "d1", "/contracts")
	if errs.KindOf(err) != errs.TokenError {
		t.Fatalf("want TokenError, got %v", err)
	}
}

type failingToken struct{}

func (failingToken) Token(ctx context.Context) (string, error) {
	return "", errs.New(errs.TokenError, "refresh failed", nil)
}
