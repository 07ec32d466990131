package engine

import (
	"context"
	"fmt"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/remote"
)

// LoadResult is the outcome of a Load, Refresh, or LoadMore.
type LoadResult struct {
	// Posts is the scope's live sequence after the operation.
	Posts []post.Post
	// Freshness classifies the shadow snapshot backing the result.
	Freshness cache.Freshness
	// FromCache is true when the result was served from the shadow snapshot
	// without touching the network.
	FromCache bool
	// Superseded is true when a newer fetch for the same scope replaced this
	// one while it was in flight. The completion was dropped; the store is
	// whatever the newer fetch made it. Not an error.
	Superseded bool
	// More reports whether another page exists.
	More bool
}

// Load serves the scope from cache when the snapshot is fresh or aging, and
// fetches the first page remotely otherwise.
func (e *Engine) Load(ctx context.Context, scope cache.Scope) (LoadResult, error) {
	state, ok := e.state(scope)
	if !ok {
		return LoadResult{}, opError(ErrCodeUnknownScope, scope, "", fmt.Errorf("scope not open"))
	}

	if posts, freshness := state.store.Read(); freshness.Servable() {
		state.store.SetLive(posts)
		e.logger.Debug("load served from cache",
			"scope", scope,
			"freshness", freshness,
			"posts", len(posts),
		)
		return LoadResult{
			Posts:     posts,
			Freshness: freshness,
			FromCache: true,
			More:      e.cursor(state) != "",
		}, nil
	}

	return e.fetch(ctx, scope, state, "", false)
}

// Refresh forces a remote refetch of the first page regardless of freshness
// (the pull-to-refresh path).
func (e *Engine) Refresh(ctx context.Context, scope cache.Scope) (LoadResult, error) {
	state, ok := e.state(scope)
	if !ok {
		return LoadResult{}, opError(ErrCodeUnknownScope, scope, "", fmt.Errorf("scope not open"))
	}
	return e.fetch(ctx, scope, state, "", false)
}

// LoadMore appends the next page to the live sequence. With no further page
// it returns the current live sequence and More=false without a fetch.
func (e *Engine) LoadMore(ctx context.Context, scope cache.Scope) (LoadResult, error) {
	state, ok := e.state(scope)
	if !ok {
		return LoadResult{}, opError(ErrCodeUnknownScope, scope, "", fmt.Errorf("scope not open"))
	}

	cursor := e.cursor(state)
	if cursor == "" {
		return LoadResult{
			Posts:     state.store.Live(),
			Freshness: state.store.Freshness(),
			FromCache: true,
		}, nil
	}
	return e.fetch(ctx, scope, state, cursor, true)
}

// fetch runs one remote fetch for a scope. Every fetch carries a request id;
// starting a new fetch makes it the scope's active one, and a completion
// whose id is no longer active is dropped silently (its result belongs to a
// superseded request, not to the UI).
func (e *Engine) fetch(ctx context.Context, scope cache.Scope, state *scopeState, cursor string, appendPage bool) (LoadResult, error) {
	reqID := e.ids.NewID()
	e.setActiveFetch(state, reqID)

	fetchCtx := ctx
	if e.cfg.RemoteTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.cfg.RemoteTimeout)
		defer cancel()
	}

	batch, err := e.svc.FetchPosts(fetchCtx, scope, remote.Page{Limit: e.cfg.PageSize, Cursor: cursor})

	if !e.isActiveFetch(state, reqID) {
		e.logger.Debug("stale fetch completion dropped", "scope", scope, "request", reqID)
		e.record(TraceDropped, scope, "", "request="+reqID)
		return LoadResult{Superseded: true}, nil
	}
	if err != nil {
		return LoadResult{}, opError(ErrCodeFetchFailed, scope, "", err)
	}

	if appendPage {
		state.store.AppendLive(batch.Posts)
	} else {
		state.store.SetLive(batch.Posts)
	}
	e.setCursor(state, batch.NextCursor)

	// All-or-nothing caching: the whole live sequence is cached only when
	// every locator is hydrated. A rejected write leaves the previous
	// snapshot alone and triggers targeted repair of the missing subset.
	live := state.store.Live()
	if accepted := state.store.Write(live); !accepted {
		missing := state.store.MissingMedia()
		if repairErr := e.repairMedia(ctx, state.store, missing); repairErr != nil {
			e.logger.Warn("partial batch repair failed",
				"scope", scope,
				"missing", len(missing),
				"error", repairErr,
			)
		} else if len(state.store.MissingMedia()) == 0 {
			state.store.Write(state.store.Live())
		}
	}

	e.record(TraceFetch, scope, "", fmt.Sprintf("posts=%d cursor=%q", len(batch.Posts), batch.NextCursor))

	return LoadResult{
		Posts:     state.store.Live(),
		Freshness: state.store.Freshness(),
		More:      batch.NextCursor != "",
	}, nil
}

func (e *Engine) setActiveFetch(state *scopeState, reqID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state.activeFetch = reqID
}

func (e *Engine) isActiveFetch(state *scopeState, reqID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return state.activeFetch == reqID
}

func (e *Engine) setCursor(state *scopeState, cursor string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state.nextCursor = cursor
}

func (e *Engine) cursor(state *scopeState) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return state.nextCursor
}
