package mutate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpfister44/Kinnect-sub000/internal/bus"
	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/remote"
)

// recordingBus captures published events without fan-out.
type recordingBus struct {
	events []bus.Event
}

func (b *recordingBus) Publish(e bus.Event) { b.events = append(b.events, e) }

func seededStore(t *testing.T) *cache.Store {
	t.Helper()
	s := cache.New(cache.MainFeed)
	p := post.Post{
		ID:       "p1",
		Author:   "bob",
		MediaKey: "media/p1",
		Media:    &post.Media{URL: "https://cdn.example/p1", ExpiresAt: time.Unix(2_000_000_000, 0)},
	}
	require.True(t, s.Write([]post.Post{p}))
	s.SetLive([]post.Post{p})
	return s
}

func confirmOK(conf remote.Confirmation) RemoteOp {
	return func(context.Context) (remote.Confirmation, error) { return conf, nil }
}

func confirmErr(err error) RemoteOp {
	return func(context.Context) (remote.Confirmation, error) { return remote.Confirmation{}, err }
}

func TestExecutor_Perform_OptimisticThenPublish(t *testing.T) {
	b := &recordingBus{}
	e := NewExecutor(b, 0, nil)
	s := seededStore(t)

	var duringRemote post.Post
	op := func(ctx context.Context) (remote.Confirmation, error) {
		// The optimistic step must land before the remote call suspends.
		duringRemote, _ = s.Get("p1")
		return remote.Confirmation{Post: "p1", LikeCount: 1, Liked: true}, nil
	}

	err := e.Perform(context.Background(), s, "p1", post.Patch{Likes: 1, Liked: post.BoolPtr(true)}, bus.LikeAdd, op)
	require.NoError(t, err)

	assert.Equal(t, int64(1), duringRemote.LikeCount, "optimistic step applies before the remote call")
	assert.True(t, duringRemote.LikedByMe)

	require.Len(t, b.events, 1)
	assert.Equal(t, bus.LikeAdd, b.events[0].Kind)
	assert.Equal(t, post.ID("p1"), b.events[0].Post)
	assert.Equal(t, cache.MainFeed, b.events[0].Origin)
}

func TestExecutor_Perform_CorrectsDivergentConfirmation(t *testing.T) {
	b := &recordingBus{}
	e := NewExecutor(b, 0, nil)
	s := seededStore(t)

	// Another actor liked concurrently: server confirms 2, not the guessed 1.
	err := e.Perform(context.Background(), s, "p1",
		post.Patch{Likes: 1, Liked: post.BoolPtr(true)}, bus.LikeAdd,
		confirmOK(remote.Confirmation{Post: "p1", LikeCount: 2, Liked: true}))
	require.NoError(t, err)

	got, ok := s.Get("p1")
	require.True(t, ok)
	assert.Equal(t, int64(2), got.LikeCount, "store must match the confirmed state")
	assert.True(t, got.LikedByMe)
}

func TestExecutor_Perform_RollbackOnFailure(t *testing.T) {
	b := &recordingBus{}
	e := NewExecutor(b, 0, nil)
	s := seededStore(t)

	before, ok := s.Get("p1")
	require.True(t, ok)

	err := e.Perform(context.Background(), s, "p1",
		post.Patch{Likes: 1, Liked: post.BoolPtr(true)}, bus.LikeAdd,
		confirmErr(errors.New("network down")))
	require.Error(t, err)

	after, ok := s.Get("p1")
	require.True(t, ok)
	assert.Equal(t, before.LikeCount, after.LikeCount, "counters must be bit-for-bit pre-mutation")
	assert.Equal(t, before.CommentCount, after.CommentCount)
	assert.Equal(t, before.LikedByMe, after.LikedByMe)

	assert.Empty(t, b.events, "a failed mutation must publish nothing")
}

func TestExecutor_Perform_RollbackIsIdempotentAcrossViews(t *testing.T) {
	b := &recordingBus{}
	e := NewExecutor(b, 0, nil)
	s := seededStore(t)

	_ = e.Perform(context.Background(), s, "p1",
		post.Patch{Comments: 1}, bus.CommentAdd, confirmErr(errors.New("timeout")))

	shadow, _ := s.Read()
	require.Len(t, shadow, 1)
	assert.Equal(t, int64(0), shadow[0].CommentCount, "shadow view must roll back too")
}

func TestExecutor_Perform_TimeoutIsFailure(t *testing.T) {
	b := &recordingBus{}
	e := NewExecutor(b, 10*time.Millisecond, nil)
	s := seededStore(t)

	op := func(ctx context.Context) (remote.Confirmation, error) {
		<-ctx.Done()
		return remote.Confirmation{}, ctx.Err()
	}

	err := e.Perform(context.Background(), s, "p1", post.Patch{Likes: 1}, bus.LikeAdd, op)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got, _ := s.Get("p1")
	assert.Equal(t, int64(0), got.LikeCount, "timeout rolls back like any other failure")
	assert.Empty(t, b.events)
}

func TestExecutor_Perform_UnknownIDStillCallsRemote(t *testing.T) {
	b := &recordingBus{}
	e := NewExecutor(b, 0, nil)
	s := cache.New(cache.MainFeed)

	called := false
	op := func(ctx context.Context) (remote.Confirmation, error) {
		called = true
		return remote.Confirmation{Post: "gone", LikeCount: 1, Liked: true}, nil
	}

	err := e.Perform(context.Background(), s, "gone", post.Patch{Likes: 1}, bus.LikeAdd, op)
	require.NoError(t, err)
	assert.True(t, called, "the entity may have scrolled out locally but still exist remotely")
	require.Len(t, b.events, 1, "siblings may still hold the entity")
}

func TestExecutor_PerformRemove_OptimisticRemoval(t *testing.T) {
	b := &recordingBus{}
	e := NewExecutor(b, 0, nil)
	s := seededStore(t)

	var lenDuringRemote int
	op := func(ctx context.Context) (remote.Confirmation, error) {
		lenDuringRemote = s.Len()
		return remote.Confirmation{}, nil
	}

	err := e.PerformRemove(context.Background(), s, "p1", op)
	require.NoError(t, err)

	assert.Equal(t, 0, lenDuringRemote, "removal happens before the remote call")
	assert.Equal(t, 0, s.Len())

	require.Len(t, b.events, 1)
	assert.Equal(t, bus.PostDelete, b.events[0].Kind)
}

func TestExecutor_PerformRemove_RestoresSnapshotOnFailure(t *testing.T) {
	b := &recordingBus{}
	e := NewExecutor(b, 0, nil)
	s := seededStore(t)

	err := e.PerformRemove(context.Background(), s, "p1", confirmErr(errors.New("forbidden")))
	require.Error(t, err)

	assert.Equal(t, 1, s.Len(), "the deleted entity must be reinserted")
	shadow, _ := s.Read()
	assert.Len(t, shadow, 1)
	assert.Empty(t, b.events)
}

func TestExecutor_PerformRemoveAuthor(t *testing.T) {
	b := &recordingBus{}
	e := NewExecutor(b, 0, nil)
	s := cache.New(cache.MainFeed)
	posts := []post.Post{
		{ID: "p1", Author: "bob", MediaKey: "m1", Media: &post.Media{URL: "u1"}},
		{ID: "p2", Author: "carol", MediaKey: "m2", Media: &post.Media{URL: "u2"}},
	}
	require.True(t, s.Write(posts))
	s.SetLive(posts)

	err := e.PerformRemoveAuthor(context.Background(), s, "bob", confirmOK(remote.Confirmation{}))
	require.NoError(t, err)

	live := s.Live()
	require.Len(t, live, 1)
	assert.Equal(t, post.ID("p2"), live[0].ID)

	require.Len(t, b.events, 1)
	assert.Equal(t, bus.FollowRemove, b.events[0].Kind)
	assert.Equal(t, post.ActorID("bob"), b.events[0].Author)
}

func TestExecutor_PerformRemoveAuthor_RollbackOnFailure(t *testing.T) {
	b := &recordingBus{}
	e := NewExecutor(b, 0, nil)
	s := seededStore(t)

	err := e.PerformRemoveAuthor(context.Background(), s, "bob", confirmErr(errors.New("boom")))
	require.Error(t, err)

	assert.Equal(t, 1, s.Len())
	assert.Empty(t, b.events)
}
