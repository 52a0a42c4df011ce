// Package events carries progress notifications from the engine to
// transport-level subscribers over explicit channels. The broker is owned by
// the process that wires the engine; nothing here is a global.
package events

import (
	"sync"
	"time"
)

// Type labels a progress event.
type Type string

const (
	TypeStepUnlocked      Type = "step_unlocked"
	TypeStepCompleted     Type = "step_completed"
	TypeMilestoneUnlocked Type = "milestone_unlocked"
	TypePathCompleted     Type = "path_completed"
	TypeXPAwarded         Type = "xp_awarded"
)

// Event is one progress notification for one student.
type Event struct {
	Type        Type      `json:"type"`
	StudentID   string    `json:"student_id"`
	PathID      string    `json:"path_id,omitempty"`
	StepID      string    `json:"step_id,omitempty"`
	MilestoneID string    `json:"milestone_id,omitempty"`
	ConceptID   string    `json:"concept_id,omitempty"`
	XP          int       `json:"xp,omitempty"`
	At          time.Time `json:"at"`
}

// Each subscriber gets this much slack before it starts missing events.
const subscriberBuffer = 16

// Broker fans events out to per-student subscribers. Publishing never
// blocks: a subscriber that stops draining misses events instead of
// stalling the engine.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Event]struct{})}
}

// Subscription is one subscriber's handle. Read from C; Close when done.
type Subscription struct {
	C <-chan Event

	broker    *Broker
	studentID string
	ch        chan Event
	once      sync.Once
}

// Subscribe registers a subscriber for one student's events.
func (b *Broker) Subscribe(studentID string) *Subscription {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[studentID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[studentID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	return &Subscription{C: ch, broker: b, studentID: studentID, ch: ch}
}

// Close removes the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		if set, ok := b.subs[s.studentID]; ok {
			delete(set, s.ch)
			if len(set) == 0 {
				delete(b.subs, s.studentID)
			}
		}
		b.mu.Unlock()
		close(s.ch)
	})
}

// Publish delivers the event to every subscriber of its student.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.StudentID] {
		select {
		case ch <- ev:
		default:
			// Subscriber is not draining; drop rather than block.
		}
	}
}
