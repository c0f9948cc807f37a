package testutil

import (
	"context"
	"sync"
)

// FakeController records systemd unit operations.
type FakeController struct {
	mu       sync.Mutex
	Restarts []string
	Active   map[string]bool

	FailRestart  error
	FailIsActive error
}

func (f *FakeController) Restart(ctx context.Context, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Restarts = append(f.Restarts, unit)
	if f.FailRestart != nil {
		return f.FailRestart
	}
	if f.Active == nil {
		f.Active = make(map[string]bool)
	}
	f.Active[unit] = true
	return nil
}

func (f *FakeController) IsActive(ctx context.Context, unit string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailIsActive != nil {
		return false, f.FailIsActive
	}
	return f.Active[unit], nil
}

// RestartCount returns how many restarts were issued for unit.
func (f *FakeController) RestartCount(unit string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.Restarts {
		if u == unit {
			n++
		}
	}
	return n
}
