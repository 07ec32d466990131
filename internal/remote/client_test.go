package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

func TestNewClient_RejectsBadBaseURL(t *testing.T) {
	_, err := NewClient("", "alice", 0)
	assert.Error(t, err)

	_, err = NewClient("   ", "alice", 0)
	assert.Error(t, err)
}

func TestNewClient_DefaultsSchemeToHTTP(t *testing.T) {
	c, err := NewClient("127.0.0.1:8901", "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, "http", c.baseURL.Scheme)
}

func TestClient_FetchPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/posts", r.URL.Path)
		assert.Equal(t, "main-feed", r.URL.Query().Get("scope"))
		assert.Equal(t, "12", r.URL.Query().Get("limit"))
		assert.Equal(t, "alice", r.Header.Get("X-Kinnect-Actor"))

		json.NewEncoder(w).Encode(Batch{
			Posts:      []post.Post{{ID: "p1", Author: "bob"}},
			NextCursor: "cursor-2",
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "alice", time.Second)
	require.NoError(t, err)

	batch, err := c.FetchPosts(context.Background(), cache.MainFeed, Page{Limit: 12})
	require.NoError(t, err)
	require.Len(t, batch.Posts, 1)
	assert.Equal(t, post.ID("p1"), batch.Posts[0].ID)
	assert.Equal(t, "cursor-2", batch.NextCursor)
}

func TestClient_Mutate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/mutations", r.URL.Path)

		var m Mutation
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		assert.Equal(t, MutateLike, m.Kind)
		assert.Equal(t, post.ID("p1"), m.Post)

		json.NewEncoder(w).Encode(Confirmation{Post: "p1", LikeCount: 4, Liked: true})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "alice", time.Second)
	require.NoError(t, err)

	conf, err := c.Mutate(context.Background(), Mutation{Kind: MutateLike, Post: "p1"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), conf.LikeCount)
	assert.True(t, conf.Liked)
}

func TestClient_Mutate_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "post not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "alice", time.Second)
	require.NoError(t, err)

	_, err = c.Mutate(context.Background(), Mutation{Kind: MutateLike, Post: "gone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_ResolveMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/media/resolve", r.URL.Path)

		var req struct {
			Keys []post.MediaKey `json:"keys"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []post.MediaKey{"media/p1"}, req.Keys)

		json.NewEncoder(w).Encode(map[string]any{
			"media": map[post.MediaKey]post.Media{
				"media/p1": {URL: "https://cdn.example/p1?sig=fresh"},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "alice", time.Second)
	require.NoError(t, err)

	media, err := c.ResolveMedia(context.Background(), []post.MediaKey{"media/p1"})
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "https://cdn.example/p1?sig=fresh", media["media/p1"].URL)
}

func TestClient_DialFeed_ReadsRecords(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/changes", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("actor"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		data, _ := json.Marshal(ChangeRecord{Post: "p1", Kind: ChangeLikeInsert, Actor: "bob"})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "alice", time.Second)
	require.NoError(t, err)

	feed, err := c.DialFeed(context.Background())
	require.NoError(t, err)
	defer feed.Close()

	record, err := feed.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, post.ID("p1"), record.Post)
	assert.Equal(t, ChangeLikeInsert, record.Kind)
	assert.Equal(t, post.ActorID("bob"), record.Actor)
}

func TestChangeRecord_Patch(t *testing.T) {
	assert.Equal(t, int64(1), ChangeRecord{Kind: ChangeLikeInsert}.Patch().Likes)
	assert.Equal(t, int64(-1), ChangeRecord{Kind: ChangeLikeDelete}.Patch().Likes)
	assert.Equal(t, int64(1), ChangeRecord{Kind: ChangeCommentInsert}.Patch().Comments)
	assert.Equal(t, int64(-1), ChangeRecord{Kind: ChangeCommentDelete}.Patch().Comments)
}
