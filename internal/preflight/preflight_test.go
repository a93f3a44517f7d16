package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"simq/internal/config"
	"simq/internal/identity"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckQueueDirectory_Modes(t *testing.T) {
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	result := CheckQueueDirectory(dir)
	if !result.Passed || !strings.Contains(result.Detail, "only the owner") {
		t.Fatalf("unexpected result %+v", result)
	}

	if err := os.Chmod(dir, 0o777); err != nil {
		t.Fatal(err)
	}
	result = CheckQueueDirectory(dir)
	if !result.Passed || !strings.Contains(result.Detail, "sticky") {
		t.Fatalf("unexpected result %+v", result)
	}

	if err := os.Chmod(dir, 0o777|os.ModeSticky); err != nil {
		t.Fatal(err)
	}
	result = CheckQueueDirectory(dir)
	if !result.Passed || strings.Contains(result.Detail, ";") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckQueueDirectory_Missing(t *testing.T) {
	if result := CheckQueueDirectory(""); result.Passed {
		t.Fatal("expected failure without queue dir")
	}
}

func TestCheckSuperuser(t *testing.T) {
	if result := CheckSuperuser(identity.Identity{UID: 1000, GID: 1000}); result.Passed {
		t.Fatal("expected failure for ordinary user")
	}
	if result := CheckSuperuser(identity.Identity{UID: 0, GID: 0}); !result.Passed {
		t.Fatalf("expected pass for root, got %s", result.Detail)
	}
}

func TestRunAllAndFailed(t *testing.T) {
	cfg := config.Default()
	cfg.Queue.Dir = t.TempDir()
	logFile := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(logFile, nil, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	cfg.Logging.Dir = logFile

	results := RunAll(&cfg, identity.Identity{UID: 0, GID: 0})
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[2].Name != "Job shell" || !results[2].Passed {
		t.Fatalf("expected the job shell to resolve, got %#v", results[2])
	}
	err := Failed(results)
	if err == nil || !strings.Contains(err.Error(), "Log directory") {
		t.Fatalf("expected log directory failure, got %v", err)
	}

	cfg.Logging.Dir = filepath.Join(t.TempDir(), "logs")
	if err := Failed(RunAll(&cfg, identity.Identity{UID: 0, GID: 0})); err != nil {
		t.Fatalf("expected all checks to pass, got %v", err)
	}
	cfg.Daemon.Shell = "/nonexistent/shell"
	if err := Failed(RunAll(&cfg, identity.Identity{UID: 0, GID: 0})); err == nil || !strings.Contains(err.Error(), "Job shell") {
		t.Fatalf("expected job shell failure, got %v", err)
	}
	if RunAll(nil, identity.Identity{}) != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestCheckLogDirectory_MissingIsAccepted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs")
	result := CheckLogDirectory(path)
	if !result.Passed || !strings.Contains(result.Detail, "will be created") {
		t.Fatalf("expected missing log dir to pass, got %#v", result)
	}
}
