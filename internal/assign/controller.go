// Package assign keeps a transaction's displayed category consistent
// with server state across a network round trip. Changes apply
// optimistically: the control shows the new value immediately, the
// server confirms it, and a failed confirmation rolls the control back
// to the last confirmed value.
package assign

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/log"
)

// Presentation is the visual state of a category control.
type Presentation int

const (
	PresentationNeutral Presentation = iota
	PresentationPending
	PresentationConfirmed
	PresentationError
)

// Control is the per-transaction category selection surface the
// controller drives. Implementations belong to whatever owns the
// transaction list; the controller never creates or destroys them.
type Control interface {
	SetValue(categoryID *int64)
	SetEnabled(enabled bool)
	SetPresentation(p Presentation)
}

// Notifier shows user-visible notices. Optional; a nil notifier
// degrades to log-only.
type Notifier interface {
	Notify(message string)
}

// Updater performs the server round trip for one category change.
// Failures should be *UpdateError so the notice can reflect the kind;
// anything else is treated as a network failure.
type Updater interface {
	UpdateCategory(ctx context.Context, transactionID int64, categoryID *int64) error
}

// Config tunes the controller. Zero values disable the corresponding
// behavior.
type Config struct {
	// RequestTimeout bounds each server call. Without it a hung
	// request would leave the control disabled indefinitely.
	RequestTimeout time.Duration

	// ConfirmedFor is how long the confirmed presentation is shown
	// before the control returns to neutral.
	ConfirmedFor time.Duration
}

// assignment tracks one transaction's category state. displayed equals
// original except between submission and resolution.
type assignment struct {
	control    Control // nil once released
	original   *int64
	displayed  *int64
	pending    *int64
	inFlight   bool
	generation uint64 // bumped on every state change, guards the confirmed timer
}

// Controller owns the transaction-to-category assignments for one
// rendered view. Create one per view and Release its bindings before
// replacing it.
type Controller struct {
	updater  Updater
	notifier Notifier
	refresh  func() // spending summary recompute hook, may be nil
	logger   *slog.Logger
	cfg      Config

	mu          sync.Mutex
	assignments map[int64]*assignment
}

func NewController(updater Updater, notifier Notifier, refreshSummary func(), logger *slog.Logger, cfg Config) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		updater:     updater,
		notifier:    notifier,
		refresh:     refreshSummary,
		logger:      logger,
		cfg:         cfg,
		assignments: make(map[int64]*assignment),
	}
}

// Bind registers the control for a transaction with its server-provided
// initial category. Binding an already-bound transaction replaces the
// control and resets the assignment; a request still in flight for the
// old binding resolves without touching the new one.
func (c *Controller) Bind(transactionID int64, initial *int64, control Control) {
	c.mu.Lock()
	c.assignments[transactionID] = &assignment{
		control:   control,
		original:  initial,
		displayed: initial,
	}
	c.mu.Unlock()

	control.SetValue(initial)
	control.SetEnabled(true)
	control.SetPresentation(PresentationNeutral)
}

// Release detaches the control for a transaction. A request still in
// flight completes against the detached record without touching the
// control; the record is dropped once it resolves.
func (c *Controller) Release(transactionID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assignments[transactionID]
	if !ok {
		return
	}
	a.control = nil
	a.generation++
	if !a.inFlight {
		delete(c.assignments, transactionID)
	}
}

// Displayed returns the category currently shown for a transaction.
func (c *Controller) Displayed(transactionID int64) (*int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assignments[transactionID]
	if !ok {
		return nil, false
	}
	return a.displayed, true
}

// Original returns the last server-confirmed category.
func (c *Controller) Original(transactionID int64) (*int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assignments[transactionID]
	if !ok {
		return nil, false
	}
	return a.original, true
}

// RequestCategoryChange submits a category change for one transaction.
// The control shows the new value and is disabled before the server
// call; after resolution it is re-enabled on every path. Success
// commits the value and triggers the summary refresh hook; any failure
// rolls the control back to the last confirmed value. A change for the
// same transaction while one is pending returns ErrChangePending.
// Requests for different transactions are independent and may overlap.
func (c *Controller) RequestCategoryChange(ctx context.Context, transactionID int64, newCategoryID *int64) error {
	c.mu.Lock()
	a, ok := c.assignments[transactionID]
	if !ok {
		c.mu.Unlock()
		return ErrNotBound
	}
	if a.inFlight {
		c.mu.Unlock()
		return ErrChangePending
	}
	a.inFlight = true
	a.original = a.displayed
	a.pending = newCategoryID
	a.displayed = newCategoryID
	a.generation++
	control := a.control
	c.mu.Unlock()

	if control != nil {
		control.SetValue(newCategoryID)
		control.SetEnabled(false)
		control.SetPresentation(PresentationPending)
	}

	callCtx := ctx
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	updateErr := asUpdateError(c.updater.UpdateCategory(callCtx, transactionID, newCategoryID))

	return c.resolve(ctx, transactionID, a, newCategoryID, updateErr)
}

// resolve applies the outcome of a round trip. Re-enabling the control
// is deferred so no exit path, including a panicking presentation hook,
// can leave it disabled.
func (c *Controller) resolve(ctx context.Context, transactionID int64, a *assignment, newCategoryID *int64, updateErr *UpdateError) error {
	c.mu.Lock()
	current, ok := c.assignments[transactionID]
	if !ok || current != a {
		// Released and dropped, or rebound to a fresh assignment while
		// the request was in flight; the new binding's state stands.
		c.mu.Unlock()
		return c.report(ctx, transactionID, updateErr)
	}

	a.inFlight = false
	a.pending = nil
	if updateErr == nil {
		a.original = newCategoryID
		a.displayed = newCategoryID
	} else {
		a.displayed = a.original
	}
	a.generation++
	gen := a.generation
	control := a.control
	rollback := a.original
	if control == nil {
		delete(c.assignments, transactionID)
	}
	c.mu.Unlock()

	if control != nil {
		func() {
			defer control.SetEnabled(true)
			if updateErr == nil {
				control.SetPresentation(PresentationConfirmed)
				c.scheduleNeutral(transactionID, gen)
			} else {
				control.SetValue(rollback)
				control.SetPresentation(PresentationError)
			}
		}()
	}

	if updateErr == nil && c.refresh != nil {
		c.refresh()
	}

	return c.report(ctx, transactionID, updateErr)
}

// scheduleNeutral drops the confirmed presentation after the configured
// hold. A newer state change or a release invalidates the timer.
func (c *Controller) scheduleNeutral(transactionID int64, gen uint64) {
	if c.cfg.ConfirmedFor <= 0 {
		return
	}
	time.AfterFunc(c.cfg.ConfirmedFor, func() {
		c.mu.Lock()
		a, ok := c.assignments[transactionID]
		if !ok || a.generation != gen || a.control == nil {
			c.mu.Unlock()
			return
		}
		control := a.control
		c.mu.Unlock()
		control.SetPresentation(PresentationNeutral)
	})
}

func (c *Controller) report(ctx context.Context, transactionID int64, updateErr *UpdateError) error {
	if updateErr == nil {
		c.logger.InfoContext(ctx, "Category change committed",
			log.FieldTransactionID, transactionID,
			log.FieldOutcome, log.OutcomeCommitted)
		return nil
	}

	c.logger.WarnContext(ctx, "Category change rolled back",
		log.FieldTransactionID, transactionID,
		log.FieldOutcome, log.OutcomeRolledBack,
		"failure_kind", updateErr.Kind.String(),
		log.FieldError, updateErr)
	if c.notifier != nil {
		c.notifier.Notify(updateErr.Notice())
	}
	return updateErr
}
