package tasks

import (
	"sync"
	"time"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
)

// EventKind classifies live task events.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventStage    EventKind = "stage"
	EventStatus   EventKind = "status"
)

// Event is one live update of a task, delivered to subscribers.
type Event struct {
	Kind       EventKind                     `json:"kind"`
	TaskID     string                        `json:"task_id"`
	Status     Status                        `json:"status,omitempty"`
	Stage      orchestrator.Stage            `json:"stage,omitempty"`
	StageEvent orchestrator.StageEvent       `json:"stage_event,omitempty"`
	Progress   *orchestrator.ProgressMessage `json:"progress,omitempty"`
	At         time.Time                     `json:"at"`
}

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 64

// broadcaster fans task events out to per-task subscribers. Emit never
// blocks: when a subscriber's buffer is full the event is dropped for it.
type broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[string]map[chan Event]struct{})}
}

func (b *broadcaster) subscribe(taskID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	set, ok := b.subs[taskID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[taskID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[taskID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(b.subs, taskID)
				}
			}
		})
	}
	return ch, cancel
}

func (b *broadcaster) emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.TaskID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeTask closes every subscription of taskID.
func (b *broadcaster) closeTask(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[taskID] {
		close(ch)
	}
	delete(b.subs, taskID)
}

func closedEvents() <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}
