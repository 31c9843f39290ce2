package monitor

import (
	"time"

	"github.com/cyclopcam/logs"
)

// ZoneObservation is one detector verdict for one zone on one frame.
type ZoneObservation struct {
	ZID      int64
	Occupied bool
}

// ChangeEvent records a zone flipping between free and occupied.
type ChangeEvent struct {
	ZID      int64     `json:"zid"`
	Occupied bool      `json:"occupied"`
	At       time.Time `json:"at"`
}

// ZoneState is the tracker's current belief about one zone.
type ZoneState struct {
	ZID         int64     `json:"zid"`
	Occupied    bool      `json:"occupied"`
	LastChanged time.Time `json:"lastChanged"`
}

// Tracker turns per-frame zone observations into state transitions.
// Observations that agree with the current state are absorbed, so a car that
// sits in a bay for an hour produces one event, not thirty thousand.
// Not safe for concurrent use; only the monitor loop touches it.
type Tracker struct {
	log      logs.Log
	states   map[int64]*ZoneState
	lastWarn time.Time
}

// NewTracker creates a tracker for the given zones.
// Every zone starts out unoccupied, with LastChanged = now, so the first frame
// reports a flip for every zone that is already occupied.
func NewTracker(log logs.Log, zids []int64, now time.Time) *Tracker {
	t := &Tracker{
		log:    log,
		states: make(map[int64]*ZoneState, len(zids)),
	}
	for _, zid := range zids {
		t.states[zid] = &ZoneState{
			ZID:         zid,
			Occupied:    false,
			LastChanged: now,
		}
	}
	return t
}

// Ingest applies a single observation. It returns a ChangeEvent if the zone
// flipped, and nil if the observation matches the current state. LastChanged
// moves only on flips. An observation for an unknown zone is dropped, with a
// throttled warning.
func (t *Tracker) Ingest(zid int64, occupied bool, now time.Time) *ChangeEvent {
	state := t.states[zid]
	if state == nil {
		if now.Sub(t.lastWarn) > 15*time.Second {
			t.log.Warnf("Tracker: ignoring observation for unknown zone %v", zid)
			t.lastWarn = now
		}
		return nil
	}
	if state.Occupied == occupied {
		return nil
	}
	state.Occupied = occupied
	state.LastChanged = now
	return &ChangeEvent{
		ZID:      zid,
		Occupied: occupied,
		At:       now,
	}
}

// IngestFrame applies a whole frame of observations, in slice order, and
// returns the flips in that same order. The result is never nil.
func (t *Tracker) IngestFrame(obs []ZoneObservation, now time.Time) []ChangeEvent {
	events := []ChangeEvent{}
	for _, o := range obs {
		if ev := t.Ingest(o.ZID, o.Occupied, now); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

// State returns a copy of the current state of a zone.
func (t *Tracker) State(zid int64) (ZoneState, bool) {
	state := t.states[zid]
	if state == nil {
		return ZoneState{}, false
	}
	return *state, true
}
