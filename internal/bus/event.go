package bus

import (
	"fmt"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

// Kind discriminates the mutation event variants.
type Kind string

const (
	// LikeAdd means the local actor liked a post.
	LikeAdd Kind = "like-add"
	// LikeRemove means the local actor removed a like.
	LikeRemove Kind = "like-remove"
	// CommentAdd means the local actor commented on a post.
	CommentAdd Kind = "comment-add"
	// CommentRemove means the local actor deleted a comment.
	CommentRemove Kind = "comment-remove"
	// PostDelete means the local actor deleted a post entirely.
	PostDelete Kind = "post-delete"
	// FollowRemove means the local actor unfollowed an author; every scope
	// drops that author's posts.
	FollowRemove Kind = "follow-remove"
)

// Event is an immutable record of one locally-originated, remote-confirmed
// mutation. Created only after the remote call succeeds, published once,
// consumed by zero or more sibling stores, never persisted.
type Event struct {
	Kind   Kind
	Post   post.ID      // set for all kinds except FollowRemove
	Author post.ActorID // set for FollowRemove
	Origin cache.Scope  // scope whose optimistic update already applied this
}

// Patch returns the counter delta the event implies for non-origin stores.
// PostDelete and FollowRemove carry no delta; subscribers handle them as
// removals instead.
func (e Event) Patch() (post.Patch, bool) {
	// Bus events only ever carry the local actor's own actions, so like
	// events set the liked flag in sibling scopes too.
	switch e.Kind {
	case LikeAdd:
		return post.Patch{Likes: 1, Liked: post.BoolPtr(true)}, true
	case LikeRemove:
		return post.Patch{Likes: -1, Liked: post.BoolPtr(false)}, true
	case CommentAdd:
		return post.Patch{Comments: 1}, true
	case CommentRemove:
		return post.Patch{Comments: -1}, true
	default:
		return post.Patch{}, false
	}
}

func (e Event) String() string {
	if e.Kind == FollowRemove {
		return fmt.Sprintf("%s author=%s origin=%s", e.Kind, e.Author, e.Origin)
	}
	return fmt.Sprintf("%s post=%s origin=%s", e.Kind, e.Post, e.Origin)
}
