package mutate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kpfister44/Kinnect-sub000/internal/bus"
	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/remote"
)

// RemoteOp is one awaited remote mutation. The executor calls it at most
// once per user action; retries are the user's decision, not the engine's.
type RemoteOp func(ctx context.Context) (remote.Confirmation, error)

// Publisher is the slice of the bus the executor needs. *bus.Bus satisfies it.
type Publisher interface {
	Publish(bus.Event)
}

// Executor runs optimistic mutations against one store at a time.
type Executor struct {
	bus     Publisher
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates an executor publishing on b. timeout bounds every
// remote call; zero disables the bound. A nil logger falls back to
// slog.Default.
func NewExecutor(b Publisher, timeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{bus: b, timeout: timeout, logger: logger}
}

// engagement is the captured pre-mutation state of one post's mutable fields.
type engagement struct {
	likes    int64
	comments int64
	liked    bool
}

func captureEngagement(p post.Post) engagement {
	return engagement{likes: p.LikeCount, comments: p.CommentCount, liked: p.LikedByMe}
}

// Perform applies patch optimistically, runs op, and reconciles or rolls
// back. On success it publishes kind on the bus tagged with the store's
// scope; on failure the store is restored to its captured state and nothing
// is published. The returned error is the remote error, wrapped.
func (e *Executor) Perform(ctx context.Context, store *cache.Store, id post.ID, patch post.Patch, kind bus.Kind, op RemoteOp) error {
	prior, known := store.Get(id)

	// Optimistic step: synchronous, before any suspension.
	store.Mutate(id, patch)

	confirmed, err := e.invoke(ctx, op)
	if err != nil {
		if known {
			captured := captureEngagement(prior)
			store.SetEngagement(id, captured.likes, captured.comments, captured.liked)
		}
		e.logger.Warn("optimistic mutation rolled back",
			"scope", store.Scope(),
			"post", id,
			"kind", kind,
			"error", err,
		)
		return fmt.Errorf("remote mutation %s: %w", kind, err)
	}

	// Correct the optimistic guess when the confirmed state disagrees (a
	// race on the backend can produce a different final value).
	if current, ok := store.Get(id); ok {
		if current.LikeCount != confirmed.LikeCount ||
			current.CommentCount != confirmed.CommentCount ||
			current.LikedByMe != confirmed.Liked {
			store.SetEngagement(id, confirmed.LikeCount, confirmed.CommentCount, confirmed.Liked)
			e.logger.Debug("optimistic guess corrected",
				"scope", store.Scope(),
				"post", id,
				"like_count", confirmed.LikeCount,
				"comment_count", confirmed.CommentCount,
			)
		}
	}

	e.bus.Publish(bus.Event{Kind: kind, Post: id, Origin: store.Scope()})
	return nil
}

// PerformRemove deletes the entity optimistically from both views before the
// remote call. Failure restores the full pre-mutation snapshot; success
// publishes PostDelete.
func (e *Executor) PerformRemove(ctx context.Context, store *cache.Store, id post.ID, op RemoteOp) error {
	snap := store.Snapshot()
	store.Remove(id)

	if _, err := e.invoke(ctx, op); err != nil {
		store.Restore(snap)
		e.logger.Warn("optimistic delete rolled back",
			"scope", store.Scope(),
			"post", id,
			"error", err,
		)
		return fmt.Errorf("remote delete: %w", err)
	}

	e.bus.Publish(bus.Event{Kind: bus.PostDelete, Post: id, Origin: store.Scope()})
	return nil
}

// PerformRemoveAuthor removes every post by author optimistically (the
// unfollow path). Failure restores the full snapshot; success publishes
// FollowRemove so sibling scopes drop the author too.
func (e *Executor) PerformRemoveAuthor(ctx context.Context, store *cache.Store, author post.ActorID, op RemoteOp) error {
	snap := store.Snapshot()
	store.RemoveAuthor(author)

	if _, err := e.invoke(ctx, op); err != nil {
		store.Restore(snap)
		e.logger.Warn("optimistic unfollow rolled back",
			"scope", store.Scope(),
			"author", author,
			"error", err,
		)
		return fmt.Errorf("remote unfollow: %w", err)
	}

	e.bus.Publish(bus.Event{Kind: bus.FollowRemove, Author: author, Origin: store.Scope()})
	return nil
}

func (e *Executor) invoke(ctx context.Context, op RemoteOp) (remote.Confirmation, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return op(ctx)
}
