// Package notify implements the notification surface: de-duplicated toasts
// keyed by id, with an optional action, a dismiss continuation and an
// optional auto-dismiss timer.
package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	ethchecksum "github.com/ethchecksum/ethchecksum"
)

// EventType names what happened to a toast
type EventType string

const (
	EventShown     EventType = "shown"
	EventReplaced  EventType = "replaced"
	EventDismissed EventType = "dismissed"
	EventClosed    EventType = "closed"
	EventExpired   EventType = "expired"
	EventClicked   EventType = "clicked"
)

// Event is delivered to the sink for every toast change
type Event struct {
	Type  EventType
	Toast ethchecksum.Toast
}

// Sink receives toast events. It is called without the toaster lock held.
type Sink func(Event)

type entry struct {
	toast ethchecksum.Toast
	seq   uint64
	timer clockwork.Timer
}

// Toaster is an in-memory Notifier.
//
// Show with an id already on screen replaces that toast in place. Dismiss
// and timer expiry remove a toast silently; Close is the user closing it and
// runs its OnDismiss command; Click runs its action command.
type Toaster struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	logger  *slog.Logger
	sink    Sink
	entries map[string]*entry
	seq     uint64
}

// Option configures a Toaster
type Option func(*Toaster)

// WithClock sets the clock driving auto-dismiss timers
func WithClock(clock clockwork.Clock) Option {
	return func(t *Toaster) {
		t.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Toaster) {
		t.logger = logger
	}
}

// WithSink sets a callback receiving every toast event
func WithSink(sink Sink) Option {
	return func(t *Toaster) {
		t.sink = sink
	}
}

// NewToaster creates an empty toaster
func NewToaster(opts ...Option) *Toaster {
	t := &Toaster{
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Show displays toast, replacing any toast with the same id
func (t *Toaster) Show(toast ethchecksum.Toast) {
	t.mu.Lock()
	t.seq++
	seq := t.seq

	eventType := EventShown
	if old, ok := t.entries[toast.ID]; ok {
		eventType = EventReplaced
		stop(old)
		// Replacing keeps the original position on screen.
		seq = old.seq
	}

	e := &entry{toast: toast, seq: seq}
	if toast.Duration > 0 {
		id := toast.ID
		e.timer = t.clock.AfterFunc(toast.Duration, func() {
			t.expire(id, e)
		})
	}
	t.entries[toast.ID] = e
	t.mu.Unlock()

	t.logger.Debug("toast shown", "id", toast.ID, "message", toast.Message, "replaced", eventType == EventReplaced)
	t.emit(Event{Type: eventType, Toast: toast})
}

// Dismiss withdraws the toast with id without running its OnDismiss command
func (t *Toaster) Dismiss(id string) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		stop(e)
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if ok {
		t.emit(Event{Type: EventDismissed, Toast: e.toast})
	}
}

// Click presses the action button of the toast with id. It reports false
// when no such toast, or no action, is on screen.
func (t *Toaster) Click(ctx context.Context, id string) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	t.mu.Unlock()

	if !ok || e.toast.Action == nil || e.toast.Action.Command == nil {
		return false
	}

	t.emit(Event{Type: EventClicked, Toast: e.toast})
	e.toast.Action.Command.Execute(ctx)
	return true
}

// Close is the user closing the toast with id; its OnDismiss command runs.
func (t *Toaster) Close(ctx context.Context, id string) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		stop(e)
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}

	t.emit(Event{Type: EventClosed, Toast: e.toast})
	if e.toast.OnDismiss != nil {
		e.toast.OnDismiss.Execute(ctx)
	}
	return true
}

// Get returns the toast with id if it is on screen
func (t *Toaster) Get(id string) (ethchecksum.Toast, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return ethchecksum.Toast{}, false
	}
	return e.toast, true
}

// Active returns the toasts on screen in the order they were first shown
func (t *Toaster) Active() []ethchecksum.Toast {
	t.mu.Lock()
	entries := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	toasts := make([]ethchecksum.Toast, len(entries))
	for i, e := range entries {
		toasts[i] = e.toast
	}
	return toasts
}

func (t *Toaster) expire(id string, e *entry) {
	t.mu.Lock()
	current, ok := t.entries[id]
	if !ok || current != e {
		t.mu.Unlock()
		return
	}
	delete(t.entries, id)
	t.mu.Unlock()

	t.emit(Event{Type: EventExpired, Toast: e.toast})
}

func (t *Toaster) emit(ev Event) {
	if t.sink != nil {
		t.sink(ev)
	}
}

func stop(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
}

var _ ethchecksum.Notifier = (*Toaster)(nil)
