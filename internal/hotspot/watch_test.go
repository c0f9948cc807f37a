package hotspot

import (
	"context"
	"testing"
	"time"

	"github.com/fieldkit/hotspotd/internal/journal"
)

func TestWatcher_CyclesUntilCancelled(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	fx := newFixture(t)
	fx.connectSTA("wlan0", "HomeNet")

	w, err := NewWatcher(fx.rec, defaultParams(), 5*time.Millisecond, testLogger)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for fx.recorder.RunCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d cycles before deadline", fx.recorder.RunCount())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}

	// First cycle applies, later ones find everything satisfied.
	run, ok := fx.recorder.Last()
	if !ok {
		t.Fatal("expected journal records")
	}
	if run.Outcome != journal.OutcomeSatisfied {
		t.Errorf("last outcome = %q, want satisfied", run.Outcome)
	}
}

func TestWatcher_KeepsGoingThroughSoftSkips(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	fx := newFixture(t)
	params := defaultParams()
	params.APInterface = "wlan9" // unplugged

	w, err := NewWatcher(fx.rec, params, 5*time.Millisecond, testLogger)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for fx.recorder.RunCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("watcher stopped cycling on a soft skip")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	run, _ := fx.recorder.Last()
	if run.Outcome != journal.OutcomeSkipped {
		t.Errorf("outcome = %q, want skipped", run.Outcome)
	}
}

func TestNewWatcher_Validation(t *testing.T) {
	fx := newFixture(t)

	if _, err := NewWatcher(nil, defaultParams(), time.Second, testLogger); err == nil {
		t.Error("nil reconciler should be rejected")
	}
	if _, err := NewWatcher(fx.rec, defaultParams(), 0, testLogger); err == nil {
		t.Error("zero interval should be rejected")
	}
	if _, err := NewWatcher(fx.rec, defaultParams(), time.Second, nil); err == nil {
		t.Error("nil logger should be rejected")
	}
}
