package tracker

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finnappt/seatwatch/internal/identity"
)

func observeAll(t *testing.T, tr *Tracker, cat identity.SeatCategory, polls [][]string) []*Event {
	t.Helper()
	var events []*Event
	for _, dates := range polls {
		if ev := tr.Observe(cat, dates); ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func TestAppearThenConfirmedDrop(t *testing.T) {
	tr := New(zap.NewNop())
	events := observeAll(t, tr, identity.Student, [][]string{
		{"2026-09-07", "2026-09-12"},
		{},
		{},
	})

	require.Len(t, events, 2)
	assert.Equal(t, Available, events[0].Kind)
	assert.Equal(t, []string{"2026-09-07", "2026-09-12"}, events[0].Dates)
	assert.Equal(t, Stopped, events[1].Kind)
	assert.Empty(t, events[1].Dates)
}

func TestAllEmptyStaysQuiet(t *testing.T) {
	tr := New(zap.NewNop())
	events := observeAll(t, tr, identity.Student, [][]string{{}, {}, {}})
	assert.Empty(t, events)
}

func TestRepeatedAvailabilityAnnouncesOnce(t *testing.T) {
	tr := New(zap.NewNop())
	events := observeAll(t, tr, identity.Work, [][]string{
		{"2026-09-07"},
		{"2026-09-07"},
		{"2026-09-07", "2026-09-08"},
	})
	require.Len(t, events, 1)
	assert.Equal(t, Available, events[0].Kind)
}

func TestSingleEmptyPollIsABlip(t *testing.T) {
	tr := New(zap.NewNop())
	events := observeAll(t, tr, identity.Visa, [][]string{
		{"2026-09-07"},
		{},
		{"2026-09-07"},
		{"2026-09-07"},
	})
	// The one-poll gap never reaches subscribers.
	require.Len(t, events, 1)
	assert.Equal(t, Available, events[0].Kind)
}

func TestEventsAlternate(t *testing.T) {
	tr := New(zap.NewNop())
	polls := [][]string{
		{"2026-09-01"}, {}, {}, {}, {"2026-09-02"}, {"2026-09-03"}, {}, {}, {"2026-09-04"},
	}
	events := observeAll(t, tr, identity.Family, polls)

	require.NotEmpty(t, events)
	assert.Equal(t, Available, events[0].Kind)
	for i := 1; i < len(events); i++ {
		assert.NotEqual(t, events[i-1].Kind, events[i].Kind,
			"events %d and %d must alternate", i-1, i)
	}
}

func TestRearmOnChangedDates(t *testing.T) {
	tr := New(zap.NewNop(), WithRearmOnChange())
	events := observeAll(t, tr, identity.Student, [][]string{
		{"2026-09-07"},
		{"2026-09-07"},
		{"2026-09-07", "2026-09-14"},
	})
	require.Len(t, events, 2)
	assert.Equal(t, Available, events[1].Kind)
	assert.Equal(t, []string{"2026-09-07", "2026-09-14"}, events[1].Dates)
}

func TestStudentSeasonScenario(t *testing.T) {
	tr := New(zap.NewNop())
	events := observeAll(t, tr, identity.Student, [][]string{
		{},
		{"2024-05-01"},
		{"2024-05-01", "2024-05-02"},
		{},
		{},
	})

	require.Len(t, events, 2)
	assert.Equal(t, Available, events[0].Kind)
	assert.Equal(t, []string{"2024-05-01"}, events[0].Dates)
	assert.Equal(t, Stopped, events[1].Kind)
}

func TestCategoriesAreIndependent(t *testing.T) {
	tr := New(zap.NewNop())
	ev1 := tr.Observe(identity.Student, []string{"2026-09-07"})
	ev2 := tr.Observe(identity.Work, nil)
	ev3 := tr.Observe(identity.Work, []string{"2026-10-01"})

	require.NotNil(t, ev1)
	assert.Nil(t, ev2)
	require.NotNil(t, ev3)
	assert.Equal(t, identity.Work, ev3.Category)
}

func TestStateSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStateStore(path)

	tr := New(zap.NewNop(), WithStateStore(store))
	require.NotNil(t, tr.Observe(identity.Student, []string{"2026-09-07"}))

	// A restarted tracker must remember seats were already announced.
	tr2 := New(zap.NewNop(), WithStateStore(store))
	assert.Nil(t, tr2.Observe(identity.Student, []string{"2026-09-07"}))
	assert.Nil(t, tr2.Observe(identity.Student, nil))
	ev := tr2.Observe(identity.Student, nil)
	require.NotNil(t, ev)
	assert.Equal(t, Stopped, ev.Kind)
}

func TestFileStateStoreMissingFile(t *testing.T) {
	store := NewFileStateStore(filepath.Join(t.TempDir(), "absent.json"))
	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestFileStateStoreRoundTrip(t *testing.T) {
	store := NewFileStateStore(filepath.Join(t.TempDir(), "state.json"))
	in := map[identity.SeatCategory]Snapshot{
		identity.Student: {State: "found", Dates: []string{"2026-09-07"}},
		identity.Work:    {State: "not-found"},
	}
	require.NoError(t, store.Save(in))

	out, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
