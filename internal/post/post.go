package post

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ID uniquely identifies a post across every store and the remote service.
type ID string

// ActorID identifies the user that performed an action (author, liker,
// commenter). The engine compares these against the local actor to decide
// whether a remote-confirmed change was its own.
type ActorID string

// MediaKey is the opaque storage key of a post's media object. The key is
// stable; the signed locator minted for it is not.
type MediaKey string

// Media is an ephemeral, time-limited signed locator for a media object.
// A nil *Media on a Post means the locator has not been hydrated yet or has
// been invalidated.
type Media struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiresWithin reports whether the locator expires before now+window.
// Used by the proactive re-hydration sweep.
func (m *Media) ExpiresWithin(now time.Time, window time.Duration) bool {
	if m == nil {
		return true
	}
	return !m.ExpiresAt.After(now.Add(window))
}

// Post is a single shareable content item with identity and mutable counters.
type Post struct {
	ID           ID        `json:"id"`
	Author       ActorID   `json:"author"`
	Caption      string    `json:"caption,omitempty"`
	MediaKey     MediaKey  `json:"media_key"`
	Media        *Media    `json:"media,omitempty"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
	LikedByMe    bool      `json:"liked_by_me"`
	CreatedAt    time.Time `json:"created_at"`
}

// MediaReady reports whether the post carries a hydrated media locator and
// may be handed to rendering as complete.
func (p *Post) MediaReady() bool {
	return p.Media != nil && p.Media.URL != ""
}

// Clone returns a deep copy. Posts cross store boundaries by value; the only
// pointer field is the media locator.
func (p Post) Clone() Post {
	if p.Media != nil {
		m := *p.Media
		p.Media = &m
	}
	return p
}

// Patch is a counter/boolean delta applied to one post. Zero fields leave the
// corresponding values untouched.
type Patch struct {
	Likes    int64 `json:"likes,omitempty"`
	Comments int64 `json:"comments,omitempty"`
	Liked    *bool `json:"liked,omitempty"`
}

// IsZero reports whether applying the patch would change nothing.
func (d Patch) IsZero() bool {
	return d.Likes == 0 && d.Comments == 0 && d.Liked == nil
}

// Invert returns the patch that undoes d. Counter deltas negate; the liked
// flag cannot be inverted without the captured prior value, so callers that
// need rollback must capture state before applying (see mutate.Executor).
func (d Patch) Invert() Patch {
	return Patch{Likes: -d.Likes, Comments: -d.Comments}
}

// Apply mutates p in place. Counters clamp at zero: concurrent removals can
// race a decrement past a count the local cache never saw.
func (d Patch) Apply(p *Post) {
	p.LikeCount = clamp(p.LikeCount + d.Likes)
	p.CommentCount = clamp(p.CommentCount + d.Comments)
	if d.Liked != nil {
		p.LikedByMe = *d.Liked
	}
}

func clamp(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// NormalizeCaption NFC-normalizes and trims caption text at the ingestion
// boundary so that equality checks and cache comparisons are stable across
// platforms that compose Unicode differently.
func NormalizeCaption(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// BoolPtr is a convenience for building Patch literals.
func BoolPtr(b bool) *bool { return &b }
