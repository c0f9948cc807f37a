package testutil

import (
	"sync"

	"github.com/fieldkit/hotspotd/internal/fw"
)

// FakeApplier keeps firewall rules in memory, standing in for the kernel
// table across invocations.
type FakeApplier struct {
	mu         sync.Mutex
	Rules      []fw.Rule
	ApplyCalls int

	FailApply error
	FailList  error
}

func (f *FakeApplier) Apply(rules []fw.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ApplyCalls++
	if f.FailApply != nil {
		return f.FailApply
	}
	f.Rules = append([]fw.Rule(nil), rules...)
	return nil
}

func (f *FakeApplier) List() ([]fw.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailList != nil {
		return nil, f.FailList
	}
	return append([]fw.Rule(nil), f.Rules...), nil
}

// Installed returns a copy of the current rule set.
func (f *FakeApplier) Installed() []fw.Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fw.Rule(nil), f.Rules...)
}

// Applies returns how many times Apply ran.
func (f *FakeApplier) Applies() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ApplyCalls
}
