package engine

import (
	"sync"
	"sync/atomic"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

// traceClock stamps trace events with a strictly increasing seq so a trace
// reads in causal order regardless of which goroutine recorded the event.
type traceClock struct {
	seq atomic.Int64
}

func (c *traceClock) next() int64 { return c.seq.Add(1) }

// Trace event types.
const (
	TraceAction    = "action"     // local user action applied optimistically
	TraceReverted  = "reverted"   // remote failure rolled the action back
	TraceBusApply  = "bus-apply"  // sibling store applied a bus event
	TraceFeedApply = "feed-apply" // reconciler applied an other-actor record
	TraceFeedSkip  = "feed-skip"  // reconciler skipped the local actor's own record
	TraceFetch     = "fetch"      // remote fetch completed and was accepted
	TraceDropped   = "dropped"    // superseded fetch completion discarded
	TraceRepair    = "repair"     // targeted media repair ran
)

// TraceEvent is one observable engine step. The harness and the demo loop
// assert on these; production runs typically record nothing.
type TraceEvent struct {
	Seq    int64       `json:"seq"`
	Type   string      `json:"type"`
	Scope  cache.Scope `json:"scope,omitempty"`
	Post   post.ID     `json:"post,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// Recorder consumes trace events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(TraceEvent)
}

// MemoryRecorder accumulates events in memory, ordered by seq.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record implements Recorder.
func (r *MemoryRecorder) Record(e TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in record order.
func (r *MemoryRecorder) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	dup := make([]TraceEvent, len(r.events))
	copy(dup, r.events)
	return dup
}

// Reset drops all recorded events.
func (r *MemoryRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
