package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kpfister44/Kinnect-sub000/internal/bus"
	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/changefeed"
	"github.com/kpfister44/Kinnect-sub000/internal/config"
	"github.com/kpfister44/Kinnect-sub000/internal/mutate"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/remote"
	"github.com/kpfister44/Kinnect-sub000/internal/visibility"
)

// IDGenerator mints fetch request ids. Implemented by UUIDGenerator
// (production) and testutil.SequenceIDGenerator (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator mints random UUID request ids.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string { return uuid.NewString() }

// Engine is the client-side sync engine. One Engine per signed-in actor.
type Engine struct {
	cfg     config.Config
	svc     remote.Service
	actor   post.ActorID
	bus     *bus.Bus
	exec    *mutate.Executor
	tracker *visibility.Tracker
	rec     *changefeed.Reconciler
	logger  *slog.Logger
	now     func() time.Time
	ids     IDGenerator

	trace    Recorder // nil means no tracing
	traceSeq traceClock

	mu     sync.Mutex
	scopes map[cache.Scope]*scopeState
}

// scopeState is the engine's bookkeeping for one open store.
type scopeState struct {
	store       *cache.Store
	unsubscribe func()
	activeFetch string // request id of the newest fetch; older completions drop
	nextCursor  string
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger sets the engine's logger (and its components').
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the wall clock used for freshness and locator expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the fetch request-id generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithRecorder attaches a trace recorder.
func WithRecorder(rec Recorder) Option {
	return func(e *Engine) { e.trace = rec }
}

// New creates an engine for the local actor named in cfg, talking to svc and
// consuming change records from dialer.
func New(cfg config.Config, svc remote.Service, dialer remote.FeedDialer, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		svc:    svc,
		actor:  post.ActorID(cfg.Actor),
		logger: slog.Default(),
		now:    time.Now,
		ids:    UUIDGenerator{},
		scopes: make(map[cache.Scope]*scopeState),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.bus = bus.New(e.logger)
	e.exec = mutate.NewExecutor(e.bus, cfg.RemoteTimeout, e.logger)
	e.tracker = visibility.New(e.logger)
	e.rec = changefeed.New(dialer, e.actor, e.liveStores, e.logger,
		changefeed.WithBackoff(cfg.FeedBackoffMin, cfg.FeedBackoffMax),
		changefeed.WithRecordHook(e.traceRecord),
	)
	return e
}

// Actor returns the local actor identity.
func (e *Engine) Actor() post.ActorID { return e.actor }

// Run consumes the change feed until ctx ends. Call it from one goroutine;
// everything else on the Engine is safe to call concurrently with Run.
func (e *Engine) Run(ctx context.Context) error {
	return e.rec.Run(ctx)
}

// Open activates a scope: creates its store, subscribes it to the bus, and
// registers it with the visibility tracker. Opening an open scope is a no-op.
func (e *Engine) Open(scope cache.Scope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.scopes[scope]; ok {
		return
	}

	store := cache.New(scope,
		cache.WithThresholds(e.cfg.CacheStaleness, e.cfg.CacheExpiry),
		cache.WithClock(e.now),
		cache.WithLogger(e.logger),
	)
	unsubscribe := e.bus.Subscribe(scope, e.busHandler(store))
	e.scopes[scope] = &scopeState{store: store, unsubscribe: unsubscribe}
	e.tracker.Open(scope)

	e.logger.Info("scope opened", "scope", scope)
}

// Close tears a scope down: unsubscribes it, marks its store dead, and drops
// it. A delayed event for a closed scope mutates nothing.
func (e *Engine) Close(scope cache.Scope) {
	e.mu.Lock()
	state, ok := e.scopes[scope]
	if ok {
		delete(e.scopes, scope)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	state.unsubscribe()
	state.store.Close()
	e.tracker.Close(scope)

	e.logger.Info("scope closed", "scope", scope)
}

// Store returns the live store for a scope, for read access by the rendering
// layer. ok is false for unopened scopes.
func (e *Engine) Store(scope cache.Scope) (*cache.Store, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.scopes[scope]
	if !ok {
		return nil, false
	}
	return state.store, true
}

func (e *Engine) state(scope cache.Scope) (*scopeState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.scopes[scope]
	return state, ok
}

// liveStores snapshots the open stores for the reconciler.
func (e *Engine) liveStores() []*cache.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	stores := make([]*cache.Store, 0, len(e.scopes))
	for _, state := range e.scopes {
		stores = append(stores, state.store)
	}
	return stores
}

// busHandler applies sibling-originated events to one store. The bus already
// enforces self-skip; the liveness check covers an event racing teardown.
func (e *Engine) busHandler(store *cache.Store) bus.Handler {
	return func(event bus.Event) {
		if store.Closed() {
			return
		}
		switch event.Kind {
		case bus.PostDelete:
			store.Remove(event.Post)
		case bus.FollowRemove:
			store.RemoveAuthor(event.Author)
		default:
			if patch, ok := event.Patch(); ok {
				store.Mutate(event.Post, patch)
			}
		}
		e.record(TraceBusApply, store.Scope(), event.Post, string(event.Kind))
	}
}

// Like marks the post liked by the local actor, optimistically.
func (e *Engine) Like(ctx context.Context, scope cache.Scope, id post.ID) error {
	return e.perform(ctx, scope, id,
		post.Patch{Likes: 1, Liked: post.BoolPtr(true)},
		bus.LikeAdd,
		remote.Mutation{Kind: remote.MutateLike, Post: id},
	)
}

// Unlike removes the local actor's like, optimistically.
func (e *Engine) Unlike(ctx context.Context, scope cache.Scope, id post.ID) error {
	return e.perform(ctx, scope, id,
		post.Patch{Likes: -1, Liked: post.BoolPtr(false)},
		bus.LikeRemove,
		remote.Mutation{Kind: remote.MutateUnlike, Post: id},
	)
}

// Comment adds a comment, optimistically bumping the counter. The body is
// NFC-normalized before it leaves the client.
func (e *Engine) Comment(ctx context.Context, scope cache.Scope, id post.ID, body string) error {
	return e.perform(ctx, scope, id,
		post.Patch{Comments: 1},
		bus.CommentAdd,
		remote.Mutation{Kind: remote.MutateComment, Post: id, Comment: post.NormalizeCaption(body)},
	)
}

// DeleteComment removes one of the local actor's comments, optimistically.
func (e *Engine) DeleteComment(ctx context.Context, scope cache.Scope, id post.ID, commentID string) error {
	return e.perform(ctx, scope, id,
		post.Patch{Comments: -1},
		bus.CommentRemove,
		remote.Mutation{Kind: remote.MutateDeleteComment, Post: id, CommentID: commentID},
	)
}

// DeletePost removes the post everywhere. The optimistic step removes it
// from both views before the remote call; failure restores the full
// snapshot.
func (e *Engine) DeletePost(ctx context.Context, scope cache.Scope, id post.ID) error {
	state, ok := e.state(scope)
	if !ok {
		return opError(ErrCodeUnknownScope, scope, id, fmt.Errorf("scope not open"))
	}

	e.record(TraceAction, scope, id, string(bus.PostDelete))
	err := e.exec.PerformRemove(ctx, state.store, id, func(ctx context.Context) (remote.Confirmation, error) {
		return e.svc.Mutate(ctx, remote.Mutation{Kind: remote.MutateDeletePost, Post: id})
	})
	if err != nil {
		e.record(TraceReverted, scope, id, string(bus.PostDelete))
		return opError(ErrCodeRolledBack, scope, id, err)
	}
	return nil
}

// Unfollow stops following author: their posts leave every scope. The acting
// scope drops them optimistically; siblings follow via the bus.
func (e *Engine) Unfollow(ctx context.Context, scope cache.Scope, author post.ActorID) error {
	state, ok := e.state(scope)
	if !ok {
		return opError(ErrCodeUnknownScope, scope, "", fmt.Errorf("scope not open"))
	}

	e.record(TraceAction, scope, "", string(bus.FollowRemove)+" author="+string(author))
	err := e.exec.PerformRemoveAuthor(ctx, state.store, author, func(ctx context.Context) (remote.Confirmation, error) {
		return e.svc.Mutate(ctx, remote.Mutation{Kind: remote.MutateUnfollow, Author: author})
	})
	if err != nil {
		e.record(TraceReverted, scope, "", string(bus.FollowRemove))
		return opError(ErrCodeRolledBack, scope, "", err)
	}
	return nil
}

func (e *Engine) perform(ctx context.Context, scope cache.Scope, id post.ID, patch post.Patch, kind bus.Kind, m remote.Mutation) error {
	state, ok := e.state(scope)
	if !ok {
		return opError(ErrCodeUnknownScope, scope, id, fmt.Errorf("scope not open"))
	}

	e.record(TraceAction, scope, id, string(kind))
	err := e.exec.Perform(ctx, state.store, id, patch, kind, func(ctx context.Context) (remote.Confirmation, error) {
		return e.svc.Mutate(ctx, m)
	})
	if err != nil {
		e.record(TraceReverted, scope, id, string(kind))
		return opError(ErrCodeRolledBack, scope, id, err)
	}
	return nil
}

// record emits one trace event when a recorder is attached.
func (e *Engine) record(typ string, scope cache.Scope, id post.ID, detail string) {
	if e.trace == nil {
		return
	}
	e.trace.Record(TraceEvent{
		Seq:    e.traceSeq.next(),
		Type:   typ,
		Scope:  scope,
		Post:   id,
		Detail: detail,
	})
}

// traceRecord adapts the reconciler's record hook onto the trace.
func (e *Engine) traceRecord(record remote.ChangeRecord, applied bool) {
	typ := TraceFeedSkip
	if applied {
		typ = TraceFeedApply
	}
	e.record(typ, "", record.Post, string(record.Kind)+" actor="+string(record.Actor))
}

// ApplyChange feeds one change record through the reconciler synchronously.
// The harness and tests use this to deliver feed records deterministically
// without a live stream.
func (e *Engine) ApplyChange(record remote.ChangeRecord) bool {
	return e.rec.Apply(record)
}
