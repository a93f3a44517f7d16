package submit_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"simq/internal/clock"
	"simq/internal/lockfile"
	"simq/internal/logging"
	"simq/internal/queue"
	"simq/internal/submit"
	"simq/internal/testsupport"
)

// quickClock sleeps for a millisecond whatever it is asked, so contended
// submitters poll quickly without a fake clock's zero-time busy loop.
type quickClock struct{}

func (quickClock) Now() time.Time { return time.Now() }

func (quickClock) Sleep(ctx context.Context, _ time.Duration) error {
	return clock.Real().Sleep(ctx, time.Millisecond)
}

func newSubmitter(t *testing.T, store submit.JobStore, dir string, maxWait int, clk clock.Clock) *submit.Submitter {
	t.Helper()
	s, err := submit.New(store, filepath.Join(dir, ".lock"), maxWait, clk, logging.NewNop())
	if err != nil {
		t.Fatalf("submit.New: %v", err)
	}
	return s
}

func TestSubmitAssignsMonotonicIDs(t *testing.T) {
	store := testsupport.NewQueue(t)
	s := newSubmitter(t, store, store.Dir(), 5, clock.NewFake(time.Unix(0, 0)))

	for want := int64(1); want <= 3; want++ {
		result, err := s.Submit(context.Background(), "/tmp/work", []string{"echo", "hello"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if result.ID != want || result.QueueLength != int(want) {
			t.Fatalf("unexpected result %+v, want id %d", result, want)
		}
	}

	job, err := store.Read(2)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if job.WorkingDirectory != "/tmp/work" || job.Command != "echo hello" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestSubmitFollowsNewestExistingJob(t *testing.T) {
	store := testsupport.NewQueue(t)
	testsupport.SeedJobs(t, store, 4, 7)
	s := newSubmitter(t, store, store.Dir(), 5, clock.NewFake(time.Unix(0, 0)))

	result, err := s.Submit(context.Background(), "/tmp", []string{"true"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.ID != 8 || result.QueueLength != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestConcurrentSubmittersNeverCollide(t *testing.T) {
	store := testsupport.NewQueue(t)
	const submitters = 12

	var wg sync.WaitGroup
	errs := make(chan error, submitters)
	for range submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each submitter gets its own store handle, as separate processes would.
			s, err := submit.New(queue.New(store.Dir()), filepath.Join(store.Dir(), ".lock"), 100000, quickClock{}, nil)
			if err != nil {
				errs <- err
				return
			}
			if _, err := s.Submit(context.Background(), "/tmp", []string{"true"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("submit: %v", err)
	}

	ids, err := store.IDs()
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	want := make([]int64, submitters)
	for i := range want {
		want[i] = int64(i + 1)
	}
	if !slices.Equal(ids, want) {
		t.Fatalf("expected ids %v, got %v", want, ids)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), ".lock")); !os.IsNotExist(err) {
		t.Fatal("lock file should be gone after all submissions")
	}
}

type brokenStore struct {
	*queue.Store
	scanErr  error
	writeErr error
}

func (b brokenStore) Scan() (queue.ScanResult, error) {
	if b.scanErr != nil {
		return queue.ScanResult{}, b.scanErr
	}
	return b.Store.Scan()
}

func (b brokenStore) Write(id int64, workingDirectory string, args []string) error {
	if b.writeErr != nil {
		return b.writeErr
	}
	return b.Store.Write(id, workingDirectory, args)
}

func TestSubmitReleasesLockOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		store brokenStore
	}{
		{"write failure", brokenStore{writeErr: errors.New("disk full")}},
		{"scan failure", brokenStore{scanErr: errors.New("permission denied")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testsupport.NewQueue(t)
			tt.store.Store = store
			lockPath := filepath.Join(store.Dir(), ".lock")

			s := newSubmitter(t, tt.store, store.Dir(), 1, clock.NewFake(time.Unix(0, 0)))
			if _, err := s.Submit(context.Background(), "/tmp", []string{"true"}); err == nil {
				t.Fatal("expected submission to fail")
			}
			if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
				t.Fatal("lock file must not remain after a failed submission")
			}

			lock, err := lockfile.Acquire(lockPath)
			if err != nil {
				t.Fatalf("lock should be acquirable: %v", err)
			}
			_ = lock.Release()

			healthy := newSubmitter(t, store, store.Dir(), 1, clock.NewFake(time.Unix(0, 0)))
			result, err := healthy.Submit(context.Background(), "/tmp", []string{"true"})
			if err != nil || result.ID != 1 {
				t.Fatalf("follow-up submission failed: %+v %v", result, err)
			}
		})
	}
}

func TestSubmitTimesOutWhenLockNeverClears(t *testing.T) {
	store := testsupport.NewQueue(t)
	testsupport.WriteRaw(t, store, ".lock", "")
	clk := clock.NewFake(time.Unix(0, 0))
	s := newSubmitter(t, store, store.Dir(), 3, clk)

	_, err := s.Submit(context.Background(), "/tmp", []string{"true"})
	if !errors.Is(err, lockfile.ErrLockNotClearing) {
		t.Fatalf("expected ErrLockNotClearing, got %v", err)
	}
	if got := len(clk.Sleeps()); got != 3 {
		t.Fatalf("expected 3 polls, got %d", got)
	}
	result, err := store.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Empty() {
		t.Fatal("nothing should have been queued")
	}
}

func TestSubmitRejectsEmptyCommand(t *testing.T) {
	store := testsupport.NewQueue(t)
	s := newSubmitter(t, store, store.Dir(), 1, clock.NewFake(time.Unix(0, 0)))
	if _, err := s.Submit(context.Background(), "/tmp", nil); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxWait(0))
	store := testsupport.MustOpenStore(t, cfg)
	s, err := submit.NewFromConfig(cfg, store, clock.NewFake(time.Unix(0, 0)), nil)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	result, err := s.Submit(context.Background(), "/srv", []string{"make"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.ID != 1 {
		t.Fatalf("unexpected id %d", result.ID)
	}
}
