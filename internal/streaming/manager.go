// Package streaming provides in-memory pub/sub of research run events for
// the SSE and WebSocket endpoints, with per-run ring-buffer replay so
// reconnecting clients can resume from their last seen sequence number.
package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// Event types emitted over a run's lifetime.
const (
	EventRunStarted       = "run_started"
	EventStepChanged      = "step_changed"
	EventPlanReady        = "plan_ready"
	EventFindingReady     = "finding_ready"
	EventVerificationDone = "verification_done"
	EventRetrying         = "retrying"
	EventReportReady      = "report_ready"
	EventRunCompleted     = "run_completed"
	EventRunFailed        = "run_failed"
)

// Event is one observable state transition of a research run.
type Event struct {
	RunID     string        `json:"run_id"`
	Type      string        `json:"type"`
	Step      research.Step `json:"step,omitempty"`
	Iteration int           `json:"iteration,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Seq       uint64        `json:"seq"`
}

// Marshal returns the event's JSON form for SSE frames and logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager fans events out to subscribers per run and keeps a bounded
// history per run for replay.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

// NewManager creates a manager whose per-run replay buffers hold capacity
// events each.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = 256
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe registers a buffered channel for a run's events. The caller
// must drain it and call Unsubscribe when done.
func (m *Manager) Subscribe(runID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[runID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[runID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes the subscriber channel.
func (m *Manager) Unsubscribe(runID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[runID]; ok {
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(m.subscribers, runID)
		}
	}
}

// Publish assigns the event's sequence number, records it in the run's
// history, and delivers it to subscribers without blocking. Slow
// subscribers lose events; replay covers the gap.
func (m *Manager) Publish(runID string, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	evt.RunID = runID

	m.mu.Lock()
	rg := m.history[runID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[runID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)
	subs := m.subscribers[runID]
	m.mu.Unlock()

	for ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns buffered events with Seq > since, oldest first.
// Events evicted from the ring are gone; the result is best-effort.
func (m *Manager) ReplaySince(runID string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[runID]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops a finished run's history and subscriber set.
func (m *Manager) Forget(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[runID]; ok {
		for ch := range subs {
			close(ch)
		}
		delete(m.subscribers, runID)
	}
	delete(m.history, runID)
}

type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
