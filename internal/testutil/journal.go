package testutil

import (
	"context"
	"sync"

	"github.com/fieldkit/hotspotd/internal/journal"
)

// FakeRecorder collects journal rows in memory.
type FakeRecorder struct {
	mu   sync.Mutex
	Runs []journal.Run

	Fail error
}

func (f *FakeRecorder) InsertRun(ctx context.Context, run *journal.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return f.Fail
	}
	f.Runs = append(f.Runs, *run)
	return nil
}

// Last returns the most recent recorded run.
func (f *FakeRecorder) Last() (journal.Run, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Runs) == 0 {
		return journal.Run{}, false
	}
	return f.Runs[len(f.Runs)-1], true
}

// RunCount returns the number of recorded runs.
func (f *FakeRecorder) RunCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Runs)
}
