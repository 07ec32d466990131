package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/testutil"
)

func TestEngine_VisibilityRepair_TargetsOnlyCancelledIDs(t *testing.T) {
	var requested []post.MediaKey
	svc := &fakeService{
		resolveFn: func(keys []post.MediaKey) (map[post.MediaKey]post.Media, error) {
			requested = keys
			out := make(map[post.MediaKey]post.Media, len(keys))
			for _, key := range keys {
				out[key] = post.Media{URL: "https://cdn.example/re/" + string(key)}
			}
			return out, nil
		},
	}
	e, _ := newTestEngine(t, svc)
	store := seedScope(t, e, cache.MainFeed,
		hydrated("a", "bob"), hydrated("b", "carol"), hydrated("c", "dave"))

	e.OnBecameInvisible(cache.MainFeed)
	e.MediaCancelled(cache.MainFeed, "a")
	e.MediaCancelled(cache.MainFeed, "b")

	require.NoError(t, e.OnBecameVisible(context.Background(), cache.MainFeed))

	assert.ElementsMatch(t, []post.MediaKey{"media/a", "media/b"}, requested)
	assert.Equal(t, int64(1), store.ReloadAttempt("a"))
	assert.Equal(t, int64(1), store.ReloadAttempt("b"))
	assert.Equal(t, int64(0), store.ReloadAttempt("c"), "untouched posts keep their counters")
}

func TestEngine_VisibilityRepair_NothingCancelledIsNoop(t *testing.T) {
	svc := &fakeService{
		resolveFn: func([]post.MediaKey) (map[post.MediaKey]post.Media, error) {
			t.Fatal("no repair should run")
			return nil, nil
		},
	}
	e, _ := newTestEngine(t, svc)
	seedScope(t, e, cache.MainFeed, hydrated("a", "bob"))

	e.OnBecameInvisible(cache.MainFeed)
	require.NoError(t, e.OnBecameVisible(context.Background(), cache.MainFeed))
}

func TestEngine_VisibilityRepair_PendingFlagRepairsMissing(t *testing.T) {
	// A fetch started while invisible, with no cancellation observed: the
	// visible transition must still repair whatever is missing a locator.
	var requested []post.MediaKey
	svc := &fakeService{
		resolveFn: func(keys []post.MediaKey) (map[post.MediaKey]post.Media, error) {
			requested = keys
			return map[post.MediaKey]post.Media{
				"media/bare": {URL: "https://cdn.example/bare?sig=ok"},
			}, nil
		},
	}
	e, _ := newTestEngine(t, svc)
	e.Open(cache.MainFeed)
	store, _ := e.Store(cache.MainFeed)
	store.SetLive([]post.Post{hydrated("a", "bob"), {ID: "bare", Author: "carol", MediaKey: "media/bare"}})

	e.OnBecameInvisible(cache.MainFeed)
	e.MediaStarted(cache.MainFeed, "bare")

	require.NoError(t, e.OnBecameVisible(context.Background(), cache.MainFeed))

	assert.Equal(t, []post.MediaKey{"media/bare"}, requested)
	live := store.Live()
	require.NotNil(t, live[1].Media)
	assert.Contains(t, live[1].Media.URL, "sig=ok")
}

func TestEngine_RefreshMedia_DisabledByDefault(t *testing.T) {
	svc := &fakeService{
		resolveFn: func([]post.MediaKey) (map[post.MediaKey]post.Media, error) {
			t.Fatal("sweep must be off with a zero window")
			return nil, nil
		},
	}
	e, _ := newTestEngine(t, svc)
	seedScope(t, e, cache.MainFeed, hydrated("a", "bob"))

	require.NoError(t, e.RefreshMedia(context.Background(), cache.MainFeed))
}

func TestEngine_RefreshMedia_SweepsExpiringLocators(t *testing.T) {
	var requested []post.MediaKey
	svc := &fakeService{
		resolveFn: func(keys []post.MediaKey) (map[post.MediaKey]post.Media, error) {
			requested = keys
			return map[post.MediaKey]post.Media{
				"media/soon": {URL: "https://cdn.example/soon?sig=renewed", ExpiresAt: time.Unix(3_000_000_000, 0)},
			}, nil
		},
	}
	cfg := testConfig()
	cfg.MediaRefreshWindow = 5 * time.Minute

	clock := testutil.NewClock(time.Time{})
	e := New(cfg, svc, nil, WithClock(clock.Now))

	soon := hydrated("soon", "bob")
	soon.Media.ExpiresAt = clock.Now().Add(time.Minute)
	later := hydrated("later", "carol")
	later.Media.ExpiresAt = clock.Now().Add(time.Hour)

	e.Open(cache.MainFeed)
	store, _ := e.Store(cache.MainFeed)
	store.SetLive([]post.Post{soon, later})

	require.NoError(t, e.RefreshMedia(context.Background(), cache.MainFeed))

	assert.Equal(t, []post.MediaKey{"media/soon"}, requested)
	live := store.Live()
	assert.Contains(t, live[0].Media.URL, "renewed")
}
