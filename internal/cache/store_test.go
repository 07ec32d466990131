package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

// fakeClock is a settable wall clock for pinning freshness boundaries.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func hydrated(id post.ID, author post.ActorID) post.Post {
	return post.Post{
		ID:       id,
		Author:   author,
		MediaKey: post.MediaKey("media/" + string(id)),
		Media:    &post.Media{URL: "https://cdn.example/" + string(id), ExpiresAt: time.Unix(2_000_000_000, 0)},
	}
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return New(MainFeed, WithClock(clock.Now)), clock
}

func TestStore_Read_NeverWrittenIsExpired(t *testing.T) {
	s, _ := newTestStore(t)

	posts, f := s.Read()
	assert.Nil(t, posts)
	assert.Equal(t, Expired, f)
}

func TestStore_Read_FreshnessBoundaries(t *testing.T) {
	s, clock := newTestStore(t)
	require.True(t, s.Write([]post.Post{hydrated("p1", "alice")}))

	clock.Advance(4*time.Minute + 59*time.Second)
	posts, f := s.Read()
	assert.Len(t, posts, 1)
	assert.Equal(t, Fresh, f)

	clock.Advance(2 * time.Second) // 5:01
	posts, f = s.Read()
	assert.Len(t, posts, 1)
	assert.Equal(t, Aging, f)

	clock.Advance(40 * time.Minute) // 45:01
	posts, f = s.Read()
	assert.Nil(t, posts, "expired snapshot must not be served")
	assert.Equal(t, Expired, f)
}

func TestStore_Write_AllOrNothing(t *testing.T) {
	s, _ := newTestStore(t)
	require.True(t, s.Write([]post.Post{hydrated("p1", "alice"), hydrated("p2", "bob")}))

	// One missing locator rejects the whole batch.
	batch := []post.Post{hydrated("p3", "alice"), {ID: "p4", Author: "bob", MediaKey: "media/p4"}}
	assert.False(t, s.Write(batch))

	posts, f := s.Read()
	require.Len(t, posts, 2, "previous snapshot must be completely untouched")
	assert.Equal(t, post.ID("p1"), posts[0].ID)
	assert.Equal(t, post.ID("p2"), posts[1].ID)
	assert.Equal(t, Fresh, f)
}

func TestStore_Write_DoesNotRetainCallerSlice(t *testing.T) {
	s, _ := newTestStore(t)
	batch := []post.Post{hydrated("p1", "alice")}
	require.True(t, s.Write(batch))

	batch[0].LikeCount = 99
	posts, _ := s.Read()
	assert.Equal(t, int64(0), posts[0].LikeCount)
}

func TestStore_Mutate_AppliesToLiveAndShadow(t *testing.T) {
	s, _ := newTestStore(t)
	p := hydrated("p1", "alice")
	require.True(t, s.Write([]post.Post{p}))
	s.SetLive([]post.Post{p})

	assert.True(t, s.Mutate("p1", post.Patch{Likes: 1, Liked: post.BoolPtr(true)}))

	live := s.Live()
	require.Len(t, live, 1)
	assert.Equal(t, int64(1), live[0].LikeCount)
	assert.True(t, live[0].LikedByMe)

	shadow, _ := s.Read()
	require.Len(t, shadow, 1)
	assert.Equal(t, int64(1), shadow[0].LikeCount, "shadow must stay consistent with live")
	assert.True(t, shadow[0].LikedByMe)
}

func TestStore_Mutate_MissingIDIsSilentNoop(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetLive([]post.Post{hydrated("p1", "alice")})

	assert.False(t, s.Mutate("gone", post.Patch{Likes: 1}))

	live := s.Live()
	assert.Equal(t, int64(0), live[0].LikeCount)
}

func TestStore_SetEngagement_OverwritesBothViews(t *testing.T) {
	s, _ := newTestStore(t)
	p := hydrated("p1", "alice")
	p.LikeCount = 1
	require.True(t, s.Write([]post.Post{p}))
	s.SetLive([]post.Post{p})

	assert.True(t, s.SetEngagement("p1", 7, 3, true))

	live := s.Live()
	assert.Equal(t, int64(7), live[0].LikeCount)
	assert.Equal(t, int64(3), live[0].CommentCount)
	assert.True(t, live[0].LikedByMe)

	shadow, _ := s.Read()
	assert.Equal(t, int64(7), shadow[0].LikeCount)
}

func TestStore_ApplyMedia_BothViews(t *testing.T) {
	s, _ := newTestStore(t)
	bare := post.Post{ID: "p1", Author: "alice", MediaKey: "media/p1"}
	s.SetLive([]post.Post{bare})

	m := post.Media{URL: "https://cdn.example/p1?sig=new", ExpiresAt: time.Unix(2_000_000_000, 0)}
	assert.True(t, s.ApplyMedia("p1", m))

	live := s.Live()
	require.NotNil(t, live[0].Media)
	assert.Equal(t, m.URL, live[0].Media.URL)
}

func TestStore_Remove_BothViews(t *testing.T) {
	s, _ := newTestStore(t)
	p1, p2 := hydrated("p1", "alice"), hydrated("p2", "bob")
	require.True(t, s.Write([]post.Post{p1, p2}))
	s.SetLive([]post.Post{p1, p2})
	s.BumpReload([]post.ID{"p1"})

	assert.True(t, s.Remove("p1"))

	assert.Equal(t, 1, s.Len())
	shadow, _ := s.Read()
	assert.Len(t, shadow, 1)
	assert.Equal(t, post.ID("p2"), shadow[0].ID)
	assert.Equal(t, int64(0), s.ReloadAttempt("p1"), "reload counter dropped with the post")
}

func TestStore_RemoveAuthor(t *testing.T) {
	s, _ := newTestStore(t)
	posts := []post.Post{hydrated("p1", "alice"), hydrated("p2", "bob"), hydrated("p3", "alice")}
	require.True(t, s.Write(posts))
	s.SetLive(posts)

	assert.Equal(t, 2, s.RemoveAuthor("alice"))

	live := s.Live()
	require.Len(t, live, 1)
	assert.Equal(t, post.ID("p2"), live[0].ID)
	shadow, _ := s.Read()
	assert.Len(t, shadow, 1)
}

func TestStore_SnapshotRestore_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	p := hydrated("p1", "alice")
	p.LikeCount = 2
	require.True(t, s.Write([]post.Post{p}))
	s.SetLive([]post.Post{p})

	snap := s.Snapshot()

	s.Remove("p1")
	require.Equal(t, 0, s.Len())

	s.Restore(snap)

	live := s.Live()
	require.Len(t, live, 1)
	assert.Equal(t, int64(2), live[0].LikeCount)
	shadow, f := s.Read()
	require.Len(t, shadow, 1)
	assert.Equal(t, Fresh, f, "restore must bring back the cache timestamp")
}

func TestStore_BumpReload_TargetedOnly(t *testing.T) {
	s, _ := newTestStore(t)
	posts := []post.Post{hydrated("a", "alice"), hydrated("b", "bob"), hydrated("c", "carol")}
	s.SetLive(posts)

	bumped := s.BumpReload([]post.ID{"a", "b", "gone"})

	assert.ElementsMatch(t, []post.ID{"a", "b"}, bumped)
	assert.Equal(t, int64(1), s.ReloadAttempt("a"))
	assert.Equal(t, int64(1), s.ReloadAttempt("b"))
	assert.Equal(t, int64(0), s.ReloadAttempt("c"), "untouched ids must keep their counters")
	assert.Equal(t, int64(0), s.ReloadAttempt("gone"))
}

func TestStore_MissingMedia(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetLive([]post.Post{
		hydrated("p1", "alice"),
		{ID: "p2", Author: "bob", MediaKey: "media/p2"},
		{ID: "p3", Author: "carol", MediaKey: "media/p3", Media: &post.Media{}},
	})

	assert.ElementsMatch(t, []post.ID{"p2", "p3"}, s.MissingMedia())
}

func TestStore_ExpiringMedia(t *testing.T) {
	clock := newFakeClock()
	s := New(MainFeed, WithClock(clock.Now))

	soon := hydrated("soon", "alice")
	soon.Media.ExpiresAt = clock.Now().Add(30 * time.Second)
	later := hydrated("later", "bob")
	later.Media.ExpiresAt = clock.Now().Add(time.Hour)
	s.SetLive([]post.Post{soon, later, {ID: "bare", MediaKey: "media/bare"}})

	assert.ElementsMatch(t, []post.ID{"soon", "bare"}, s.ExpiringMedia(time.Minute))
}

func TestStore_MediaKeys(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetLive([]post.Post{hydrated("p1", "alice")})

	keys := s.MediaKeys([]post.ID{"p1", "gone"})
	assert.Equal(t, map[post.ID]post.MediaKey{"p1": "media/p1"}, keys)
}

func TestStore_AppendLive_SkipsDuplicates(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetLive([]post.Post{hydrated("p1", "alice")})

	n := s.AppendLive([]post.Post{hydrated("p1", "alice"), hydrated("p2", "bob")})

	assert.Equal(t, 1, n)
	live := s.Live()
	require.Len(t, live, 2)
	assert.Equal(t, post.ID("p2"), live[1].ID)
}

func TestStore_Invalidate_DropsShadowKeepsLive(t *testing.T) {
	s, _ := newTestStore(t)
	p := hydrated("p1", "alice")
	require.True(t, s.Write([]post.Post{p}))
	s.SetLive([]post.Post{p})

	s.Invalidate()

	posts, f := s.Read()
	assert.Nil(t, posts)
	assert.Equal(t, Expired, f)
	assert.Equal(t, 1, s.Len(), "live sequence keeps rendering")
}

func TestStore_Closed_IgnoresMutations(t *testing.T) {
	s, _ := newTestStore(t)
	p := hydrated("p1", "alice")
	require.True(t, s.Write([]post.Post{p}))
	s.SetLive([]post.Post{p})

	s.Close()
	require.True(t, s.Closed())

	assert.False(t, s.Mutate("p1", post.Patch{Likes: 1}))
	assert.False(t, s.Write([]post.Post{hydrated("p2", "bob")}))
	assert.False(t, s.Remove("p1"))
	assert.Nil(t, s.BumpReload([]post.ID{"p1"}))

	live := s.Live()
	assert.Equal(t, int64(0), live[0].LikeCount, "a closed store must never change")
}
