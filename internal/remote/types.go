package remote

import (
	"context"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

// Page carries cursor paging parameters for a fetch.
type Page struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor,omitempty"` // empty means first page
}

// Batch is one page of posts for a scope. Every post either carries a fully
// hydrated media locator or a nil one; the backend never returns a silently
// partial locator.
type Batch struct {
	Posts      []post.Post `json:"posts"`
	NextCursor string      `json:"next_cursor,omitempty"` // empty means last page
}

// MutationKind names the engagement mutations the backend accepts.
type MutationKind string

const (
	MutateLike          MutationKind = "like"
	MutateUnlike        MutationKind = "unlike"
	MutateComment       MutationKind = "comment"
	MutateDeleteComment MutationKind = "delete-comment"
	MutateDeletePost    MutationKind = "delete-post"
	MutateUnfollow      MutationKind = "unfollow"
)

// Mutation is one engagement mutation request. The engine issues it at most
// once per user action; the backend is not assumed idempotent-safe to retry.
type Mutation struct {
	Kind      MutationKind `json:"kind"`
	Post      post.ID      `json:"post,omitempty"`
	Author    post.ActorID `json:"author,omitempty"`  // target of unfollow
	Comment   string       `json:"comment,omitempty"` // body for MutateComment
	CommentID string       `json:"comment_id,omitempty"`
}

// Confirmation is the authoritative post-mutation engagement state. The
// executor corrects the optimistic guess against it when they disagree.
type Confirmation struct {
	Post         post.ID `json:"post,omitempty"`
	LikeCount    int64   `json:"like_count"`
	CommentCount int64   `json:"comment_count"`
	Liked        bool    `json:"liked"`
	CommentID    string  `json:"comment_id,omitempty"` // id minted for MutateComment
}

// ChangeKind names the counter-row changes the feed delivers.
type ChangeKind string

const (
	ChangeLikeInsert    ChangeKind = "like-insert"
	ChangeLikeDelete    ChangeKind = "like-delete"
	ChangeCommentInsert ChangeKind = "comment-insert"
	ChangeCommentDelete ChangeKind = "comment-delete"
)

// ChangeRecord is one entry in the append-only change feed: an insert or
// delete of a counter-backing row, tagged with the actor who performed it.
// The feed independently delivers the same logical events that local
// mutations produce remotely; the actor tag is what lets the reconciler
// recognize its own.
type ChangeRecord struct {
	Post  post.ID      `json:"post"`
	Kind  ChangeKind   `json:"kind"`
	Actor post.ActorID `json:"actor"`
}

// Patch returns the counter delta the record implies when applied by a
// non-local actor.
func (r ChangeRecord) Patch() post.Patch {
	switch r.Kind {
	case ChangeLikeInsert:
		return post.Patch{Likes: 1}
	case ChangeLikeDelete:
		return post.Patch{Likes: -1}
	case ChangeCommentInsert:
		return post.Patch{Comments: 1}
	case ChangeCommentDelete:
		return post.Patch{Comments: -1}
	default:
		return post.Patch{}
	}
}

// Service is the backend surface the engine mutates and fetches through.
type Service interface {
	// FetchPosts returns one page of posts for a scope.
	FetchPosts(ctx context.Context, scope cache.Scope, page Page) (Batch, error)

	// Mutate applies one engagement mutation and returns the confirmed state.
	// Called at most once per user action.
	Mutate(ctx context.Context, m Mutation) (Confirmation, error)

	// ResolveMedia mints fresh signed locators for the given storage keys.
	// Keys the backend no longer knows are absent from the result, not errors.
	ResolveMedia(ctx context.Context, keys []post.MediaKey) (map[post.MediaKey]post.Media, error)
}

// ChangeFeed is one open change-stream connection. Next blocks until a record
// arrives, the stream fails, or ctx is cancelled.
type ChangeFeed interface {
	Next(ctx context.Context) (ChangeRecord, error)
	Close() error
}

// FeedDialer opens change-stream connections. The reconciler redials through
// this after stream errors.
type FeedDialer interface {
	DialFeed(ctx context.Context) (ChangeFeed, error)
}
