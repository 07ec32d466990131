package engine

import (
	"context"
	"fmt"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

// OnBecameVisible is the UI layer's visible signal for a scope. If media
// fetches were cancelled (or started) while the scope was invisible, exactly
// those posts get their reload counters bumped and their locators
// re-resolved; everything else is left alone.
func (e *Engine) OnBecameVisible(ctx context.Context, scope cache.Scope) error {
	state, ok := e.state(scope)
	if !ok {
		return opError(ErrCodeUnknownScope, scope, "", fmt.Errorf("scope not open"))
	}

	ids, pending := e.tracker.BecameVisible(scope)
	if pending {
		// A fetch started while invisible may have died without a recorded
		// cancellation; anything still missing a locator is fair game.
		ids = unionIDs(ids, state.store.MissingMedia())
	}
	if len(ids) == 0 {
		return nil
	}

	bumped := state.store.BumpReload(ids)
	e.logger.Info("targeted media repair on visibility",
		"scope", scope,
		"posts", len(bumped),
	)
	if err := e.repairMedia(ctx, state.store, bumped); err != nil {
		return opError(ErrCodeMediaRepair, scope, "", err)
	}
	return nil
}

// OnBecameInvisible is the UI layer's invisible signal for a scope.
func (e *Engine) OnBecameInvisible(scope cache.Scope) {
	e.tracker.BecameInvisible(scope)
}

// MediaStarted tells the engine a media fetch began for a post. Only fetches
// started while the scope is invisible are recorded.
func (e *Engine) MediaStarted(scope cache.Scope, id post.ID) {
	e.tracker.MediaStarted(scope, id)
}

// MediaCancelled tells the engine the view lifecycle cancelled a media
// fetch. Cancellation is input, not failure.
func (e *Engine) MediaCancelled(scope cache.Scope, id post.ID) {
	e.tracker.MediaCancelled(scope, id)
}

// RefreshMedia proactively re-resolves locators expiring within the
// configured window. A zero window disables the sweep; aging snapshots are
// then served silently, which matches the default policy.
func (e *Engine) RefreshMedia(ctx context.Context, scope cache.Scope) error {
	if e.cfg.MediaRefreshWindow <= 0 {
		return nil
	}
	state, ok := e.state(scope)
	if !ok {
		return opError(ErrCodeUnknownScope, scope, "", fmt.Errorf("scope not open"))
	}

	ids := state.store.ExpiringMedia(e.cfg.MediaRefreshWindow)
	if len(ids) == 0 {
		return nil
	}
	if err := e.repairMedia(ctx, state.store, ids); err != nil {
		return opError(ErrCodeMediaRepair, scope, "", err)
	}
	return nil
}

// repairMedia re-resolves locators for exactly the given posts and installs
// the fresh ones in both store views.
func (e *Engine) repairMedia(ctx context.Context, store *cache.Store, ids []post.ID) error {
	keys := store.MediaKeys(ids)
	if len(keys) == 0 {
		return nil
	}

	if e.cfg.RemoteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RemoteTimeout)
		defer cancel()
	}

	keyList := make([]post.MediaKey, 0, len(keys))
	for _, key := range keys {
		keyList = append(keyList, key)
	}
	resolved, err := e.svc.ResolveMedia(ctx, keyList)
	if err != nil {
		return fmt.Errorf("resolve media: %w", err)
	}

	repaired := 0
	for id, key := range keys {
		media, ok := resolved[key]
		if !ok {
			continue // backend no longer knows the key; not an error
		}
		if store.ApplyMedia(id, media) {
			repaired++
		}
	}
	e.record(TraceRepair, store.Scope(), "", fmt.Sprintf("requested=%d repaired=%d", len(keys), repaired))
	return nil
}

func unionIDs(a, b []post.ID) []post.ID {
	seen := make(map[post.ID]struct{}, len(a)+len(b))
	var out []post.ID
	for _, id := range a {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range b {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
