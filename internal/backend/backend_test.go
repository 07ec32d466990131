package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/remote"
	"github.com/kpfister44/Kinnect-sub000/internal/testutil"
)

func openTest(t *testing.T, opts ...Option) *Backend {
	t.Helper()
	b, err := Open(":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func seedPost(t *testing.T, b *Backend, author post.ActorID, caption string) post.ID {
	t.Helper()
	id, err := b.CreatePost(context.Background(), author, caption, post.MediaKey("m-"+caption))
	require.NoError(t, err)
	return id
}

func TestBackend_FetchPostsMainFeed(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()

	mine := seedPost(t, b, "alice", "sunset")
	followed := seedPost(t, b, "bob", "harbor")
	seedPost(t, b, "carol", "stranger")
	require.NoError(t, b.Follow(ctx, "alice", "bob"))

	batch, err := b.FetchPosts(ctx, "alice", cache.MainFeed, remote.Page{})
	require.NoError(t, err)
	require.Len(t, batch.Posts, 2)

	// Newest first.
	assert.Equal(t, followed, batch.Posts[0].ID)
	assert.Equal(t, mine, batch.Posts[1].ID)
	assert.Empty(t, batch.NextCursor)
	for _, p := range batch.Posts {
		assert.True(t, p.MediaReady(), "post %s should carry a signed locator", p.ID)
	}
}

func TestBackend_FetchPostsProfileScope(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()

	bobPost := seedPost(t, b, "bob", "harbor")
	seedPost(t, b, "carol", "stranger")

	batch, err := b.FetchPosts(ctx, "alice", cache.Profile("bob"), remote.Page{})
	require.NoError(t, err)
	require.Len(t, batch.Posts, 1)
	assert.Equal(t, bobPost, batch.Posts[0].ID)
}

func TestBackend_FetchPostsPagination(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()

	var ids []post.ID
	for _, caption := range []string{"one", "two", "three", "four", "five"} {
		ids = append(ids, seedPost(t, b, "alice", caption))
	}

	first, err := b.FetchPosts(ctx, "alice", cache.MainFeed, remote.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Posts, 2)
	require.NotEmpty(t, first.NextCursor)
	assert.Equal(t, ids[4], first.Posts[0].ID)
	assert.Equal(t, ids[3], first.Posts[1].ID)

	second, err := b.FetchPosts(ctx, "alice", cache.MainFeed, remote.Page{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Posts, 2)
	assert.Equal(t, ids[2], second.Posts[0].ID)
	assert.Equal(t, ids[1], second.Posts[1].ID)

	last, err := b.FetchPosts(ctx, "alice", cache.MainFeed, remote.Page{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	require.Len(t, last.Posts, 1)
	assert.Equal(t, ids[0], last.Posts[0].ID)
}

func TestBackend_LikeIsIdempotent(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()
	id := seedPost(t, b, "bob", "harbor")

	ch, cancel := b.Subscribe()
	defer cancel()

	conf, err := b.Mutate(ctx, "alice", remote.Mutation{Kind: remote.MutateLike, Post: id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), conf.LikeCount)
	assert.True(t, conf.Liked)

	// Second like is a no-op: count stays at one and no record is broadcast.
	conf, err = b.Mutate(ctx, "alice", remote.Mutation{Kind: remote.MutateLike, Post: id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), conf.LikeCount)

	record := <-ch
	assert.Equal(t, remote.ChangeLikeInsert, record.Kind)
	assert.Equal(t, post.ActorID("alice"), record.Actor)
	assert.Empty(t, ch, "duplicate like must not broadcast")
}

func TestBackend_CommentLifecycle(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()
	id := seedPost(t, b, "bob", "harbor")

	conf, err := b.Mutate(ctx, "alice", remote.Mutation{Kind: remote.MutateComment, Post: id, Comment: "nice"})
	require.NoError(t, err)
	require.NotEmpty(t, conf.CommentID)
	assert.Equal(t, int64(1), conf.CommentCount)

	conf, err = b.Mutate(ctx, "alice", remote.Mutation{Kind: remote.MutateDeleteComment, CommentID: conf.CommentID})
	require.NoError(t, err)
	assert.Equal(t, id, conf.Post)
	assert.Equal(t, int64(0), conf.CommentCount)
}

func TestBackend_DeleteCommentRequiresOwner(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()
	id := seedPost(t, b, "bob", "harbor")

	conf, err := b.Mutate(ctx, "alice", remote.Mutation{Kind: remote.MutateComment, Post: id, Comment: "nice"})
	require.NoError(t, err)

	_, err = b.Mutate(ctx, "mallory", remote.Mutation{Kind: remote.MutateDeleteComment, CommentID: conf.CommentID})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBackend_DeletePostCascades(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()
	id := seedPost(t, b, "alice", "sunset")

	_, err := b.Mutate(ctx, "bob", remote.Mutation{Kind: remote.MutateLike, Post: id})
	require.NoError(t, err)

	// Only the author may delete.
	_, err = b.Mutate(ctx, "bob", remote.Mutation{Kind: remote.MutateDeletePost, Post: id})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = b.Mutate(ctx, "alice", remote.Mutation{Kind: remote.MutateDeletePost, Post: id})
	require.NoError(t, err)

	var likes int
	require.NoError(t, b.db.QueryRow(`SELECT COUNT(*) FROM likes`).Scan(&likes))
	assert.Zero(t, likes, "likes should cascade away with the post")
}

func TestBackend_MutateUnknownPost(t *testing.T) {
	b := openTest(t)
	_, err := b.Mutate(context.Background(), "alice", remote.Mutation{Kind: remote.MutateLike, Post: "ghost"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBackend_UnfollowDropsFromFeed(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()
	seedPost(t, b, "bob", "harbor")
	require.NoError(t, b.Follow(ctx, "alice", "bob"))

	_, err := b.Mutate(ctx, "alice", remote.Mutation{Kind: remote.MutateUnfollow, Author: "bob"})
	require.NoError(t, err)

	batch, err := b.FetchPosts(ctx, "alice", cache.MainFeed, remote.Page{})
	require.NoError(t, err)
	assert.Empty(t, batch.Posts)
}

func TestBackend_ResolveMediaSkipsUnknownKeys(t *testing.T) {
	clock := testutil.NewClock(time.Time{})
	b := openTest(t, WithClock(clock.Now), WithSignTTL(10*time.Minute))
	ctx := context.Background()
	seedPost(t, b, "alice", "sunset")

	media, err := b.ResolveMedia(ctx, []post.MediaKey{"m-sunset", "m-ghost"})
	require.NoError(t, err)
	require.Contains(t, media, post.MediaKey("m-sunset"))
	assert.NotContains(t, media, post.MediaKey("m-ghost"))
	assert.Equal(t, clock.Now().Add(10*time.Minute), media["m-sunset"].ExpiresAt)
}

func TestBackend_LocalClientFeedCarriesActorTag(t *testing.T) {
	b := openTest(t)
	ctx := context.Background()
	id := seedPost(t, b, "bob", "harbor")

	client := b.ClientFor("alice")
	feed, err := client.DialFeed(ctx)
	require.NoError(t, err)
	defer feed.Close()

	_, err = b.ClientFor("bob").Mutate(ctx, remote.Mutation{Kind: remote.MutateLike, Post: id})
	require.NoError(t, err)

	record, err := feed.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, record.Post)
	assert.Equal(t, remote.ChangeLikeInsert, record.Kind)
	assert.Equal(t, post.ActorID("bob"), record.Actor)
}
