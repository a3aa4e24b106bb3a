package counter

import (
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

const (
	CountChangedEvent = "count-changed"
	StateChangedEvent = "state-changed"
)

type Event struct {
	Type      string          `json:"type"`
	Value     *VersionedValue `json:"value,omitempty"`
	State     string          `json:"state,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventRecorder is a SharedCountListener that keeps the most recent events.
type EventRecorder struct {
	clock    clock.Clock
	capacity int

	lock   sync.Mutex
	events []Event
}

func NewEventRecorder(clock clock.Clock, capacity int) *EventRecorder {
	if capacity < 1 {
		capacity = 1
	}
	return &EventRecorder{
		clock:    clock,
		capacity: capacity,
		events:   []Event{},
	}
}

func (r *EventRecorder) CountHasChanged(value VersionedValue) {
	r.record(Event{Type: CountChangedEvent, Value: &value})
}

func (r *EventRecorder) StateChanged(state storeadapter.SessionState) {
	r.record(Event{Type: StateChangedEvent, State: state.String()})
}

func (r *EventRecorder) record(event Event) {
	event.Timestamp = r.clock.Now()

	r.lock.Lock()
	defer r.lock.Unlock()

	r.events = append(r.events, event)
	if len(r.events) > r.capacity {
		r.events = r.events[len(r.events)-r.capacity:]
	}
}

func (r *EventRecorder) Events() []Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Event{}, r.events...)
}

func (r *EventRecorder) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = []Event{}
}
