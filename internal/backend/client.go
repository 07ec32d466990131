package backend

import (
	"context"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/remote"
)

// LocalClient binds the simulator to one actor, satisfying the same
// contracts as the HTTP client. It is what the harness, integration tests,
// and `kinnect demo` hand to the engine.
type LocalClient struct {
	backend *Backend
	actor   post.ActorID
}

var (
	_ remote.Service    = (*LocalClient)(nil)
	_ remote.FeedDialer = (*LocalClient)(nil)
)

// ClientFor returns an in-process client acting as actor.
func (b *Backend) ClientFor(actor post.ActorID) *LocalClient {
	return &LocalClient{backend: b, actor: actor}
}

// FetchPosts implements remote.Service.
func (c *LocalClient) FetchPosts(ctx context.Context, scope cache.Scope, page remote.Page) (remote.Batch, error) {
	return c.backend.FetchPosts(ctx, c.actor, scope, page)
}

// Mutate implements remote.Service.
func (c *LocalClient) Mutate(ctx context.Context, m remote.Mutation) (remote.Confirmation, error) {
	return c.backend.Mutate(ctx, c.actor, m)
}

// ResolveMedia implements remote.Service.
func (c *LocalClient) ResolveMedia(ctx context.Context, keys []post.MediaKey) (map[post.MediaKey]post.Media, error) {
	return c.backend.ResolveMedia(ctx, keys)
}

// DialFeed implements remote.FeedDialer.
func (c *LocalClient) DialFeed(ctx context.Context) (remote.ChangeFeed, error) {
	ch, cancel := c.backend.Subscribe()
	return &localFeed{ch: ch, cancel: cancel}, nil
}
