package assign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func ptr(v int64) *int64 { return &v }

// fakeControl records every mutation the controller performs so tests
// can assert on ordering and final state.
type fakeControl struct {
	mu            sync.Mutex
	value         *int64
	enabled       bool
	presentation  Presentation
	presentations []Presentation
	enableLog     []bool
}

func (f *fakeControl) SetValue(categoryID *int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = categoryID
}

func (f *fakeControl) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
	f.enableLog = append(f.enableLog, enabled)
}

func (f *fakeControl) SetPresentation(p Presentation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presentation = p
	f.presentations = append(f.presentations, p)
}

func (f *fakeControl) snapshot() (value *int64, enabled bool, presentation Presentation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.enabled, f.presentation
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

// fakeUpdater resolves with a preset error and can observe the control
// state at the moment of the call.
type fakeUpdater struct {
	err     error
	calls   int
	during  func()
	release chan struct{} // when set, the call blocks until closed
}

func (u *fakeUpdater) UpdateCategory(ctx context.Context, transactionID int64, categoryID *int64) error {
	u.calls++
	if u.during != nil {
		u.during()
	}
	if u.release != nil {
		select {
		case <-u.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return u.err
}

type refreshCounter struct {
	mu    sync.Mutex
	count int
}

func (r *refreshCounter) hook() func() {
	return func() {
		r.mu.Lock()
		r.count++
		r.mu.Unlock()
	}
}

func (r *refreshCounter) value() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func newTestController(updater Updater, notifier Notifier, refresh func()) *Controller {
	return NewController(updater, notifier, refresh, nil, Config{})
}

func TestSuccessfulChangeCommits(t *testing.T) {
	control := &fakeControl{}
	refresh := &refreshCounter{}
	c := newTestController(&fakeUpdater{}, nil, refresh.hook())

	// Transaction 42 starts uncategorized.
	c.Bind(42, nil, control)

	if err := c.RequestCategoryChange(context.Background(), 42, ptr(7)); err != nil {
		t.Fatalf("RequestCategoryChange: %v", err)
	}

	displayed, _ := c.Displayed(42)
	original, _ := c.Original(42)
	if displayed == nil || *displayed != 7 {
		t.Fatalf("displayed = %v, want 7", displayed)
	}
	if original == nil || *original != 7 {
		t.Fatalf("original = %v, want 7", original)
	}

	value, enabled, presentation := control.snapshot()
	if value == nil || *value != 7 {
		t.Fatalf("control value = %v, want 7", value)
	}
	if !enabled {
		t.Fatalf("control must be re-enabled after commit")
	}
	if presentation != PresentationConfirmed {
		t.Fatalf("presentation = %v, want confirmed", presentation)
	}
	if refresh.value() != 1 {
		t.Fatalf("summary refresh invoked %d times, want 1", refresh.value())
	}
}

func TestFailureRollsBack(t *testing.T) {
	kinds := []FailureKind{FailureNetwork, FailureServerRejected, FailureApplicationRejected}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			control := &fakeControl{}
			notifier := &fakeNotifier{}
			refresh := &refreshCounter{}
			updater := &fakeUpdater{err: &UpdateError{Kind: kind, Message: "no"}}
			c := newTestController(updater, notifier, refresh.hook())

			c.Bind(42, ptr(3), control)

			err := c.RequestCategoryChange(context.Background(), 42, ptr(9))
			var ue *UpdateError
			if !errors.As(err, &ue) || ue.Kind != kind {
				t.Fatalf("err = %v, want UpdateError kind %v", err, kind)
			}

			displayed, _ := c.Displayed(42)
			original, _ := c.Original(42)
			if displayed == nil || *displayed != 3 {
				t.Fatalf("displayed = %v, want rollback to 3", displayed)
			}
			if original == nil || *original != 3 {
				t.Fatalf("original = %v, want 3", original)
			}

			value, enabled, presentation := control.snapshot()
			if value == nil || *value != 3 {
				t.Fatalf("control value = %v, want 3", value)
			}
			if !enabled {
				t.Fatalf("control must be re-enabled after failure")
			}
			if presentation != PresentationError {
				t.Fatalf("presentation = %v, want error", presentation)
			}
			if refresh.value() != 0 {
				t.Fatalf("summary refresh must not run on failure")
			}
			if notifier.count() != 1 {
				t.Fatalf("notices = %d, want 1", notifier.count())
			}
		})
	}
}

func TestControlDisabledWhilePending(t *testing.T) {
	control := &fakeControl{}
	updater := &fakeUpdater{}
	updater.during = func() {
		_, enabled, presentation := control.snapshot()
		if enabled {
			t.Errorf("control enabled during server call")
		}
		if presentation != PresentationPending {
			t.Errorf("presentation = %v during call, want pending", presentation)
		}
	}
	c := newTestController(updater, nil, nil)

	c.Bind(1, nil, control)
	if err := c.RequestCategoryChange(context.Background(), 1, ptr(2)); err != nil {
		t.Fatalf("RequestCategoryChange: %v", err)
	}

	// Disable and re-enable bracket the round trip exactly once each.
	control.mu.Lock()
	defer control.mu.Unlock()
	want := []bool{true, false, true}
	if len(control.enableLog) != len(want) {
		t.Fatalf("enable transitions = %v, want %v", control.enableLog, want)
	}
	for i := range want {
		if control.enableLog[i] != want[i] {
			t.Fatalf("enable transitions = %v, want %v", control.enableLog, want)
		}
	}
}

func TestResubmitSameValueIsIdempotent(t *testing.T) {
	control := &fakeControl{}
	refresh := &refreshCounter{}
	updater := &fakeUpdater{}
	c := newTestController(updater, nil, refresh.hook())

	c.Bind(5, ptr(4), control)

	// Submitting the already-committed value still runs the full cycle.
	if err := c.RequestCategoryChange(context.Background(), 5, ptr(4)); err != nil {
		t.Fatalf("RequestCategoryChange: %v", err)
	}
	if updater.calls != 1 {
		t.Fatalf("updater calls = %d, want 1", updater.calls)
	}

	displayed, _ := c.Displayed(5)
	original, _ := c.Original(5)
	if *displayed != 4 || *original != 4 {
		t.Fatalf("state changed on idempotent resubmit: displayed=%v original=%v", displayed, original)
	}
	if _, enabled, _ := control.snapshot(); !enabled {
		t.Fatalf("control must end enabled")
	}
}

func TestSecondChangeRejectedWhilePending(t *testing.T) {
	control := &fakeControl{}
	updater := &fakeUpdater{release: make(chan struct{})}
	c := newTestController(updater, nil, nil)

	c.Bind(8, nil, control)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.RequestCategoryChange(context.Background(), 8, ptr(1))
	}()

	// Wait until the first request is in flight.
	deadline := time.After(2 * time.Second)
	for {
		if _, enabled, _ := control.snapshot(); !enabled {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first request never reached pending state")
		case <-time.After(time.Millisecond):
		}
	}

	if err := c.RequestCategoryChange(context.Background(), 8, ptr(2)); !errors.Is(err, ErrChangePending) {
		t.Fatalf("err = %v, want ErrChangePending", err)
	}

	close(updater.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first request: %v", err)
	}

	displayed, _ := c.Displayed(8)
	if displayed == nil || *displayed != 1 {
		t.Fatalf("displayed = %v, want first change committed", displayed)
	}
}

func TestIndependentTransactionsMayOverlap(t *testing.T) {
	first := &fakeControl{}
	second := &fakeControl{}
	updater := &fakeUpdater{release: make(chan struct{})}
	c := newTestController(updater, nil, nil)

	c.Bind(1, nil, first)
	c.Bind(2, nil, second)

	done := make(chan error, 2)
	go func() { done <- c.RequestCategoryChange(context.Background(), 1, ptr(10)) }()
	go func() { done <- c.RequestCategoryChange(context.Background(), 2, ptr(20)) }()

	deadline := time.After(2 * time.Second)
	for {
		_, e1, _ := first.snapshot()
		_, e2, _ := second.snapshot()
		if !e1 && !e2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("requests did not overlap: enabled=%v,%v", e1, e2)
		case <-time.After(time.Millisecond):
		}
	}

	close(updater.release)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
}

func TestReleaseMidFlightIsSafe(t *testing.T) {
	control := &fakeControl{}
	refresh := &refreshCounter{}
	updater := &fakeUpdater{release: make(chan struct{})}
	c := newTestController(updater, nil, refresh.hook())

	c.Bind(3, nil, control)

	done := make(chan error, 1)
	go func() { done <- c.RequestCategoryChange(context.Background(), 3, ptr(6)) }()

	deadline := time.After(2 * time.Second)
	for {
		if _, enabled, _ := control.snapshot(); !enabled {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("request never reached pending state")
		case <-time.After(time.Millisecond):
		}
	}

	c.Release(3)
	close(updater.release)
	if err := <-done; err != nil {
		t.Fatalf("request: %v", err)
	}

	// The detached control must not be touched after release.
	if _, enabled, _ := control.snapshot(); enabled {
		t.Fatalf("released control was re-enabled after resolution")
	}
	// The aggregate still changed on the server.
	if refresh.value() != 1 {
		t.Fatalf("summary refresh = %d, want 1", refresh.value())
	}
	if _, ok := c.Displayed(3); ok {
		t.Fatalf("assignment should be dropped after released request resolves")
	}
}

func TestRebindWhilePendingKeepsFreshBinding(t *testing.T) {
	oldControl := &fakeControl{}
	newControl := &fakeControl{}
	updater := &fakeUpdater{release: make(chan struct{})}
	c := newTestController(updater, nil, nil)

	c.Bind(6, ptr(3), oldControl)

	done := make(chan error, 1)
	go func() { done <- c.RequestCategoryChange(context.Background(), 6, ptr(9)) }()

	deadline := time.After(2 * time.Second)
	for {
		if _, enabled, _ := oldControl.snapshot(); !enabled {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("request never reached pending state")
		case <-time.After(time.Millisecond):
		}
	}

	// The view re-rendered and rebound the row with fresh server state.
	c.Bind(6, ptr(3), newControl)

	close(updater.release)
	if err := <-done; err != nil {
		t.Fatalf("request: %v", err)
	}

	// The commit of the old binding's request must not land on the new one.
	displayed, _ := c.Displayed(6)
	original, _ := c.Original(6)
	if displayed == nil || *displayed != 3 || original == nil || *original != 3 {
		t.Fatalf("fresh binding mutated: displayed=%v original=%v, want 3", displayed, original)
	}
	value, enabled, presentation := newControl.snapshot()
	if value == nil || *value != 3 {
		t.Fatalf("fresh control value = %v, want 3", value)
	}
	if !enabled {
		t.Fatalf("fresh control must stay enabled")
	}
	if presentation != PresentationNeutral {
		t.Fatalf("fresh presentation = %v, want neutral", presentation)
	}
}

func TestRequestTimeoutRollsBack(t *testing.T) {
	control := &fakeControl{}
	updater := &fakeUpdater{release: make(chan struct{})} // never released
	c := NewController(updater, nil, nil, nil, Config{RequestTimeout: 20 * time.Millisecond})

	c.Bind(9, ptr(1), control)

	err := c.RequestCategoryChange(context.Background(), 9, ptr(5))
	var ue *UpdateError
	if !errors.As(err, &ue) || ue.Kind != FailureNetwork {
		t.Fatalf("err = %v, want network failure", err)
	}

	displayed, _ := c.Displayed(9)
	if displayed == nil || *displayed != 1 {
		t.Fatalf("displayed = %v, want rollback to 1", displayed)
	}
	if _, enabled, _ := control.snapshot(); !enabled {
		t.Fatalf("control must be re-enabled after timeout")
	}
}

func TestConfirmedPresentationReturnsToNeutral(t *testing.T) {
	control := &fakeControl{}
	c := NewController(&fakeUpdater{}, nil, nil, nil, Config{ConfirmedFor: 10 * time.Millisecond})

	c.Bind(4, nil, control)
	if err := c.RequestCategoryChange(context.Background(), 4, ptr(2)); err != nil {
		t.Fatalf("RequestCategoryChange: %v", err)
	}

	if _, _, presentation := control.snapshot(); presentation != PresentationConfirmed {
		t.Fatalf("presentation = %v, want confirmed", presentation)
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, _, presentation := control.snapshot(); presentation == PresentationNeutral {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("confirmed presentation never returned to neutral")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestUnboundTransaction(t *testing.T) {
	c := newTestController(&fakeUpdater{}, nil, nil)
	if err := c.RequestCategoryChange(context.Background(), 77, ptr(1)); !errors.Is(err, ErrNotBound) {
		t.Fatalf("err = %v, want ErrNotBound", err)
	}
}
