package queue_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"simq/internal/config"
	"simq/internal/queue"
	"simq/internal/testsupport"
)

func TestScanEmptyQueueReportsSentinels(t *testing.T) {
	store := testsupport.NewQueue(t)
	testsupport.WriteRaw(t, store, ".lock", "")

	result, err := store.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Count != 0 || result.Oldest != queue.NoJob || result.Newest != queue.NoJob {
		t.Fatalf("unexpected scan of empty queue: %+v", result)
	}
	if !result.Empty() || result.NextID() != 1 {
		t.Fatalf("expected empty queue to allocate id 1, got %d", result.NextID())
	}
}

func TestScanSkipsControlAndNonNumericEntries(t *testing.T) {
	store := testsupport.NewQueue(t)
	testsupport.SeedJobs(t, store, 3, 1, 5)
	for _, name := range []string{".lock", ".10", "notes", "12abc", "007", "-4"} {
		testsupport.WriteRaw(t, store, name, "/tmp\necho\n")
	}
	if err := os.Mkdir(filepath.Join(store.Dir(), "42"), 0o755); err != nil {
		t.Fatal(err)
	}

	result, err := store.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Count != 3 || result.Oldest != 1 || result.Newest != 5 {
		t.Fatalf("unexpected scan result: %+v", result)
	}
	if result.NextID() != 6 {
		t.Fatalf("expected next id 6, got %d", result.NextID())
	}

	ids, err := store.IDs()
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 3 || ids[2] != 5 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestScanMissingDirectoryFails(t *testing.T) {
	store := queue.New(filepath.Join(t.TempDir(), "missing"))
	if _, err := store.Scan(); err == nil {
		t.Fatal("expected error for unreadable directory")
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		ok   bool
	}{
		{"1", 1, true},
		{"0", 0, true},
		{"12345", 12345, true},
		{"007", 0, false},
		{"+7", 0, false},
		{"-7", 0, false},
		{"7a", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tt := range tests {
		id, ok := queue.ParseID(tt.name)
		if ok != tt.ok || id != tt.id {
			t.Errorf("ParseID(%q) = (%d, %v), want (%d, %v)", tt.name, id, ok, tt.id, tt.ok)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := testsupport.NewQueue(t)

	if err := store.Write(1, "/tmp/work", []string{"echo", "hello", "world"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := os.ReadFile(store.Path(1))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "/tmp/work\necho hello world\n" {
		t.Fatalf("unexpected descriptor content %q", raw)
	}

	job, err := store.Read(1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if job.ID != 1 || job.WorkingDirectory != "/tmp/work" || job.Command != "echo hello world" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.UID != uint32(os.Getuid()) || job.GID != uint32(os.Getgid()) {
		t.Fatalf("expected owner %d:%d, got %d:%d", os.Getuid(), os.Getgid(), job.UID, job.GID)
	}

	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temporary file to be cleaned up, got %d entries", len(entries))
	}
}

func TestWriteRefusesToReplaceExistingJob(t *testing.T) {
	store := testsupport.NewQueue(t)
	testsupport.SeedJobs(t, store, 4)

	err := store.Write(4, "/tmp", []string{"true"})
	if !errors.Is(err, queue.ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}
}

func TestWriteValidatesInput(t *testing.T) {
	store := testsupport.NewQueue(t)
	tests := []struct {
		name    string
		workDir string
		args    []string
	}{
		{"relative dir", "work", []string{"true"}},
		{"empty command", "/tmp", nil},
		{"newline in command", "/tmp", []string{"echo", "a\nb"}},
		{"newline in dir", "/tmp/a\nb", []string{"true"}},
	}
	for _, tt := range tests {
		if err := store.Write(1, tt.workDir, tt.args); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestWriteFailsWhenDirectoryMissing(t *testing.T) {
	store := queue.New(filepath.Join(t.TempDir(), "gone"))
	if err := store.Write(1, "/tmp", []string{"true"}); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
}

func TestReadAcceptsLegacyTrailingSpaceAndNoFinalNewline(t *testing.T) {
	store := testsupport.NewQueue(t)
	testsupport.WriteRaw(t, store, "2", "/srv/data\nmake all \n")
	testsupport.WriteRaw(t, store, "3", "/srv/data\r\nmake all")

	for _, id := range []int64{2, 3} {
		job, err := store.Read(id)
		if err != nil {
			t.Fatalf("Read(%d): %v", id, err)
		}
		if job.WorkingDirectory != "/srv/data" || job.Command != "make all" {
			t.Fatalf("unexpected job %d: %+v", id, job)
		}
	}
}

func TestReadInvalidDescriptors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{"empty file", "", "working directory"},
		{"one line", "/tmp/work\n", "command line"},
		{"one line no newline", "/tmp/work", "command line"},
		{"blank command", "/tmp/work\n\n", "command is empty"},
		{"relative dir", "work\necho\n", "not absolute"},
		{"three lines", "/tmp\necho\nextra\n", "unexpected content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testsupport.NewQueue(t)
			testsupport.WriteRaw(t, store, "9", tt.content)

			_, err := store.Read(9)
			if !errors.Is(err, queue.ErrInvalidJob) {
				t.Fatalf("expected ErrInvalidJob, got %v", err)
			}
			var invalid *queue.InvalidJobError
			if !errors.As(err, &invalid) || invalid.ID != 9 {
				t.Fatalf("expected InvalidJobError for id 9, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Fatalf("expected reason %q in %q", tt.reason, err.Error())
			}
			if _, statErr := os.Stat(store.Path(9)); statErr != nil {
				t.Fatalf("invalid descriptor must stay on disk: %v", statErr)
			}
		})
	}
}

func TestReadMissingDescriptor(t *testing.T) {
	store := testsupport.NewQueue(t)
	if _, err := store.Read(1); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := testsupport.NewQueue(t)
	testsupport.SeedJobs(t, store, 1)

	if err := store.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove(1); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
	if _, err := os.Stat(store.Path(1)); !os.IsNotExist(err) {
		t.Fatal("expected descriptor to be gone")
	}
}

func TestStatReportsOwner(t *testing.T) {
	store := testsupport.NewQueue(t)
	testsupport.SeedJobs(t, store, 2)

	entry, err := store.Stat(2)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if entry.UID != uint32(os.Getuid()) {
		t.Fatalf("expected owner %d, got %d", os.Getuid(), entry.UID)
	}
	if entry.Size == 0 || entry.ModTime.IsZero() {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if _, err := store.Stat(3); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSymlinkedDescriptorIsNotAJob(t *testing.T) {
	store := testsupport.NewQueue(t)
	target := filepath.Join(t.TempDir(), "elsewhere")
	if err := os.WriteFile(target, []byte("/tmp\necho hijacked\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, store.Path(7)); err != nil {
		t.Fatal(err)
	}

	result, err := store.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Count != 0 {
		t.Fatalf("symlink must not count as a job: %+v", result)
	}

	_, err = store.Read(7)
	var invalid *queue.InvalidJobError
	if !errors.As(err, &invalid) || !errors.Is(err, queue.ErrInvalidJob) {
		t.Fatalf("expected invalid job for symlink, got %v", err)
	}

	entry, err := store.Stat(7)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if entry.Size != int64(len(target)) {
		t.Fatalf("Stat must describe the link itself, got size %d", entry.Size)
	}
}

func TestFifoDescriptorIsNotAJob(t *testing.T) {
	store := testsupport.NewQueue(t)
	if err := unix.Mkfifo(store.Path(3), 0o644); err != nil {
		t.Skipf("mkfifo unavailable: %v", err)
	}

	result, err := store.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Count != 0 {
		t.Fatalf("fifo must not count as a job: %+v", result)
	}

	done := make(chan error, 1)
	go func() {
		_, err := store.Read(3)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, queue.ErrInvalidJob) {
			t.Fatalf("expected invalid job for fifo, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Read blocked on a fifo")
	}
}

func TestListReturnsEntriesInOrder(t *testing.T) {
	store := testsupport.NewQueue(t)
	testsupport.SeedJobs(t, store, 10, 2)

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != 2 || entries[1].ID != 10 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestQuarantineMovesDescriptor(t *testing.T) {
	store := testsupport.NewQueue(t)
	testsupport.WriteRaw(t, store, "5", "broken")
	quarantine := filepath.Join(store.Dir(), ".invalid")
	now := time.Unix(1700000000, 0)

	target, err := store.Quarantine(5, quarantine, now)
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if target != filepath.Join(quarantine, "5") {
		t.Fatalf("unexpected target %q", target)
	}
	if _, err := os.Stat(store.Path(5)); !os.IsNotExist(err) {
		t.Fatal("expected descriptor to leave the queue")
	}

	testsupport.WriteRaw(t, store, "5", "broken again")
	second, err := store.Quarantine(5, quarantine, now)
	if err != nil {
		t.Fatalf("second Quarantine: %v", err)
	}
	if second == target {
		t.Fatal("expected clashing quarantine name to be disambiguated")
	}

	result, err := store.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !result.Empty() {
		t.Fatalf("quarantine directory must not count as jobs: %+v", result)
	}
}

func TestEnsureDirCreatesStickyWorldWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spool")
	if err := queue.EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o777 || info.Mode()&os.ModeSticky == 0 {
		t.Fatalf("unexpected mode %v", info.Mode())
	}
	if err := queue.EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir on existing dir: %v", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := queue.EnsureDir(file); err == nil {
		t.Fatal("expected error when path is a file")
	}
}

func TestOpenValidatesDirectory(t *testing.T) {
	cfg := config.Default()
	if _, err := queue.Open(&cfg); err == nil {
		t.Fatal("expected error without queue dir")
	}
	cfg.Queue.Dir = t.TempDir()
	store, err := queue.Open(&cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Dir() != cfg.Queue.Dir {
		t.Fatalf("unexpected dir %q", store.Dir())
	}
}
