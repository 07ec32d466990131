package visibility

import (
	"log/slog"
	"sync"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

// Tracker is the per-scope visibility state machine. Safe for concurrent use.
type Tracker struct {
	logger *slog.Logger

	mu     sync.Mutex
	scopes map[cache.Scope]*scopeState
}

// scopeState holds one scope's machine: visible or invisible, plus the repair
// bookkeeping accumulated while invisible.
type scopeState struct {
	visible   bool
	cancelled map[post.ID]struct{}
	pending   bool // media fetch initiated while invisible
}

// New creates an empty tracker. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger: logger,
		scopes: make(map[cache.Scope]*scopeState),
	}
}

// Open registers a scope. New scopes start visible; opening an already-open
// scope is a no-op.
func (t *Tracker) Open(scope cache.Scope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.scopes[scope]; ok {
		return
	}
	t.scopes[scope] = &scopeState{
		visible:   true,
		cancelled: make(map[post.ID]struct{}),
	}
}

// Close forgets a scope entirely, including any recorded repairs.
func (t *Tracker) Close(scope cache.Scope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.scopes, scope)
}

// Visible reports the scope's current state. Unknown scopes are not visible.
func (t *Tracker) Visible(scope cache.Scope) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.scopes[scope]
	return ok && state.visible
}

// BecameInvisible records the visible -> invisible transition.
func (t *Tracker) BecameInvisible(scope cache.Scope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.scopes[scope]
	if !ok || !state.visible {
		return
	}
	state.visible = false
	t.logger.Debug("scope became invisible", "scope", scope)
}

// BecameVisible records the invisible -> visible transition and drains the
// repair bookkeeping. ids is the cancelled set accumulated while invisible;
// pending reports whether any fetch started while invisible (the caller
// should repair even when ids is empty). Both are cleared by this call.
func (t *Tracker) BecameVisible(scope cache.Scope) (ids []post.ID, pending bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.scopes[scope]
	if !ok || state.visible {
		return nil, false
	}
	state.visible = true

	for id := range state.cancelled {
		ids = append(ids, id)
	}
	pending = state.pending
	state.cancelled = make(map[post.ID]struct{})
	state.pending = false

	if len(ids) > 0 || pending {
		t.logger.Debug("scope became visible with repairs due",
			"scope", scope,
			"cancelled", len(ids),
			"pending", pending,
		)
	}
	return ids, pending
}

// MediaCancelled records a media fetch cancelled while the scope is
// invisible. Cancellations while visible belong to fetch supersession and
// need no repair; they are ignored.
func (t *Tracker) MediaCancelled(scope cache.Scope, id post.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.scopes[scope]
	if !ok || state.visible {
		return
	}
	state.cancelled[id] = struct{}{}
}

// MediaStarted records a media fetch initiated while the scope is invisible.
// This covers the race where the fetch is cancelled and its completion
// interleaves unpredictably: even with no explicit cancellation observed, the
// next visible transition repairs.
func (t *Tracker) MediaStarted(scope cache.Scope, id post.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.scopes[scope]
	if !ok || state.visible {
		return
	}
	state.pending = true
	state.cancelled[id] = struct{}{}
}
