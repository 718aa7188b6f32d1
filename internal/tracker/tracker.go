// Package tracker turns raw calendar poll results into debounced
// availability transitions. A single empty poll after seats were seen does
// not count as "gone"; the drop has to be confirmed by the next poll before
// subscribers hear about it.
package tracker

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/finnappt/seatwatch/internal/identity"
)

// state is the per-category debounce position.
type state int

const (
	// stateNotFound: no seats known. Any non-empty poll announces them.
	stateNotFound state = iota
	// stateFound: seats announced and still believed present.
	stateFound
	// statePendingNotFound: the last poll was empty after seats were
	// announced; one more empty poll confirms the drop.
	statePendingNotFound
)

func (s state) String() string {
	switch s {
	case stateFound:
		return "found"
	case statePendingNotFound:
		return "pending-not-found"
	default:
		return "not-found"
	}
}

// Kind is the direction of an availability transition.
type Kind int

const (
	// Available: seats appeared where none were known.
	Available Kind = iota
	// Stopped: previously announced seats are confirmed gone.
	Stopped
)

func (k Kind) String() string {
	if k == Stopped {
		return "stopped"
	}
	return "available"
}

// Event is one subscriber-worthy transition.
type Event struct {
	Category identity.SeatCategory
	Kind     Kind
	// Dates carries the open dates for Available events; empty for
	// Stopped.
	Dates []string
}

// StateStore persists tracker state across restarts so a crash between two
// polls does not replay notifications.
type StateStore interface {
	Load() (map[identity.SeatCategory]Snapshot, error)
	Save(map[identity.SeatCategory]Snapshot) error
}

// Snapshot is the persisted form of one category's position.
type Snapshot struct {
	State string   `json:"state"`
	Dates []string `json:"dates,omitempty"`
}

type categoryState struct {
	pos   state
	dates []string
}

// Tracker holds the debounce state machine for every watched category.
// Safe for concurrent use; each category watcher observes independently.
type Tracker struct {
	mu     sync.Mutex
	cats   map[identity.SeatCategory]*categoryState
	store  StateStore
	logger *zap.Logger

	// rearmOnChange re-announces availability when the open dates change
	// while seats remain available. Off by default: the first
	// announcement already sent people to the site.
	rearmOnChange bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRearmOnChange makes the tracker emit a fresh Available event whenever
// the set of open dates changes, not only on a not-found to found edge.
func WithRearmOnChange() Option {
	return func(t *Tracker) { t.rearmOnChange = true }
}

// WithStateStore persists every transition through store and restores from
// it at construction.
func WithStateStore(store StateStore) Option {
	return func(t *Tracker) { t.store = store }
}

// New builds a tracker. With a state store configured, previously saved
// state is restored; a load failure starts clean rather than failing.
func New(logger *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		cats:   make(map[identity.SeatCategory]*categoryState),
		logger: logger.Named("tracker"),
	}
	for _, o := range opts {
		o(t)
	}
	if t.store != nil {
		saved, err := t.store.Load()
		if err != nil {
			t.logger.Warn("restoring tracker state failed, starting clean", zap.Error(err))
		} else {
			for cat, snap := range saved {
				t.cats[cat] = &categoryState{pos: parseState(snap.State), dates: snap.Dates}
			}
		}
	}
	return t
}

func parseState(s string) state {
	switch s {
	case "found":
		return stateFound
	case "pending-not-found":
		return statePendingNotFound
	default:
		return stateNotFound
	}
}

// Observe feeds one poll result for cat into the state machine. It returns
// the transition to announce, or nil when nothing subscriber-worthy
// happened.
func (t *Tracker) Observe(cat identity.SeatCategory, dates []string) *Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	cs, ok := t.cats[cat]
	if !ok {
		cs = &categoryState{}
		t.cats[cat] = cs
	}

	ev := t.transition(cat, cs, dates)
	if t.store != nil {
		if err := t.store.Save(t.snapshotLocked()); err != nil {
			t.logger.Warn("persisting tracker state failed", zap.Error(err))
		}
	}
	return ev
}

func (t *Tracker) transition(cat identity.SeatCategory, cs *categoryState, dates []string) *Event {
	seats := len(dates) > 0
	switch cs.pos {
	case stateNotFound:
		if !seats {
			return nil
		}
		cs.pos = stateFound
		cs.dates = slices.Clone(dates)
		t.logger.Info("seats appeared",
			zap.String("category", cat.Name()), zap.Strings("dates", dates))
		return &Event{Category: cat, Kind: Available, Dates: slices.Clone(dates)}

	case stateFound:
		if !seats {
			cs.pos = statePendingNotFound
			t.logger.Info("seats missing once, waiting for confirmation",
				zap.String("category", cat.Name()))
			return nil
		}
		if t.rearmOnChange && !slices.Equal(cs.dates, dates) {
			cs.dates = slices.Clone(dates)
			return &Event{Category: cat, Kind: Available, Dates: slices.Clone(dates)}
		}
		cs.dates = slices.Clone(dates)
		return nil

	default: // statePendingNotFound
		if seats {
			// A blip, not a drop.
			cs.pos = stateFound
			if t.rearmOnChange && !slices.Equal(cs.dates, dates) {
				cs.dates = slices.Clone(dates)
				return &Event{Category: cat, Kind: Available, Dates: slices.Clone(dates)}
			}
			cs.dates = slices.Clone(dates)
			return nil
		}
		cs.pos = stateNotFound
		cs.dates = nil
		t.logger.Info("seats confirmed gone", zap.String("category", cat.Name()))
		return &Event{Category: cat, Kind: Stopped}
	}
}

// snapshotLocked assumes t.mu is held.
func (t *Tracker) snapshotLocked() map[identity.SeatCategory]Snapshot {
	out := make(map[identity.SeatCategory]Snapshot, len(t.cats))
	for cat, cs := range t.cats {
		out[cat] = Snapshot{State: cs.pos.String(), Dates: slices.Clone(cs.dates)}
	}
	return out
}
