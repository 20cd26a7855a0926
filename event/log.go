package event

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Nitefawkes/TenzikCore/errors"
)

// Log is an in-memory append-only event DAG. Events are immutable once
// appended; lookups return copies.
type Log struct {
	events    map[string]*Event
	heads     map[string]struct{}
	sequences map[string]uint64
	mu        sync.RWMutex
}

// Stats summarizes a log.
type Stats struct {
	Events   int    `json:"events"`
	Heads    int    `json:"heads"`
	Receipts int    `json:"receipts"`
	Nodes    int    `json:"nodes"`
	Earliest string `json:"earliest,omitempty"`
	Latest   string `json:"latest,omitempty"`
}

// NewLog creates an empty event log.
func NewLog() *Log {
	return &Log{
		events:    make(map[string]*Event),
		heads:     make(map[string]struct{}),
		sequences: make(map[string]uint64),
	}
}

// Append validates and stores an event. The event id must commit to the
// payload, the signature must verify against the event's node id, every
// parent must already be present, and the sequence must be strictly
// greater than the node's last appended sequence. Appending an event
// that is already present is a no-op.
func (l *Log) Append(e *Event) error {
	if e == nil {
		return errors.InvalidInput(errors.PhaseEvent, "nil event")
	}
	if want := e.computeID(); e.ID != want {
		return errors.InvalidInput(errors.PhaseEvent,
			fmt.Sprintf("event id %q does not match its content", e.ID))
	}
	ok, err := e.Verify()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.PhaseEvent, errors.KindSignatureInvalid).
			Detail("event %s signature does not verify", e.ID).
			Build()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.events[e.ID]; exists {
		return nil
	}
	for _, parent := range e.Parents {
		if _, ok := l.events[parent]; !ok {
			return errors.NotFound(errors.PhaseEvent, "parent event", parent)
		}
	}
	if last := l.sequences[e.NodeID]; e.Sequence <= last {
		return errors.InvalidInput(errors.PhaseEvent,
			fmt.Sprintf("sequence %d from node %s is not greater than %d", e.Sequence, e.NodeID, last))
	}

	stored := e.clone()
	l.events[stored.ID] = stored
	l.sequences[stored.NodeID] = stored.Sequence
	for _, parent := range stored.Parents {
		delete(l.heads, parent)
	}
	l.heads[stored.ID] = struct{}{}

	Logger().Debug("event appended",
		zap.String("event_id", stored.ID),
		zap.String("type", string(stored.Type)),
		zap.Uint64("sequence", stored.Sequence),
		zap.Int("parents", len(stored.Parents)),
	)
	return nil
}

// Get returns a copy of the event with the given id.
func (l *Log) Get(id string) (*Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.events[id]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// Has reports whether an event with the given id is present.
func (l *Log) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.events[id]
	return ok
}

// Heads returns the events no other event points to, newest first.
// The fixed timestamp layout makes lexicographic order chronological;
// ties break on id so the order is stable.
func (l *Log) Heads() []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	heads := make([]*Event, 0, len(l.heads))
	for id := range l.heads {
		heads = append(heads, l.events[id].clone())
	}
	sort.Slice(heads, func(i, j int) bool {
		if heads[i].Timestamp != heads[j].Timestamp {
			return heads[i].Timestamp > heads[j].Timestamp
		}
		return heads[i].ID < heads[j].ID
	})
	return heads
}

// HeadIDs returns the ids of the current heads, ready to parent the
// next event.
func (l *Log) HeadIDs() []string {
	heads := l.Heads()
	ids := make([]string, len(heads))
	for i, h := range heads {
		ids[i] = h.ID
	}
	return ids
}

// Len returns the number of events in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Sequence returns the last appended sequence for a node, zero when
// the node has no events.
func (l *Log) Sequence(nodeID string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sequences[nodeID]
}

// Stats summarizes the log contents.
func (l *Log) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Stats{
		Events: len(l.events),
		Heads:  len(l.heads),
		Nodes:  len(l.sequences),
	}
	for _, e := range l.events {
		if e.Type == TypeReceipt {
			s.Receipts++
		}
		if s.Earliest == "" || e.Timestamp < s.Earliest {
			s.Earliest = e.Timestamp
		}
		if s.Latest == "" || e.Timestamp > s.Latest {
			s.Latest = e.Timestamp
		}
	}
	return s
}
