package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/remote"
)

// ErrNotFound is returned for mutations against unknown posts or comments.
var ErrNotFound = errors.New("not found")

const defaultPageSize = 24

// FetchPosts returns one page of posts for a scope as seen by actor: the
// main feed is the actor's own posts plus their followees', a profile scope
// is one author's posts. Newest first, rowid-keyset cursor.
func (b *Backend) FetchPosts(ctx context.Context, actor post.ActorID, scope cache.Scope, page remote.Page) (remote.Batch, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	cursor := int64(0)
	if page.Cursor != "" {
		parsed, err := strconv.ParseInt(page.Cursor, 10, 64)
		if err != nil {
			return remote.Batch{}, fmt.Errorf("parse cursor %q: %w", page.Cursor, err)
		}
		cursor = parsed
	}

	query := `
		SELECT p.rowid, p.id, p.author, p.caption, p.media_key, p.created_at,
		       (SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id),
		       (SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id),
		       EXISTS(SELECT 1 FROM likes l WHERE l.post_id = p.id AND l.actor = ?)
		FROM posts p
		WHERE (? = 0 OR p.rowid < ?)`
	args := []any{string(actor), cursor, cursor}

	if author, ok := scope.ProfileActor(); ok {
		query += ` AND p.author = ?`
		args = append(args, string(author))
	} else {
		query += ` AND (p.author = ? OR p.author IN (SELECT followee FROM follows WHERE follower = ?))`
		args = append(args, string(actor), string(actor))
	}
	query += ` ORDER BY p.rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return remote.Batch{}, fmt.Errorf("fetch posts: %w", err)
	}
	defer rows.Close()

	var batch remote.Batch
	var lastRowID int64
	for rows.Next() {
		var (
			rowid     int64
			p         post.Post
			createdAt int64
			liked     bool
		)
		if err := rows.Scan(&rowid, &p.ID, &p.Author, &p.Caption, &p.MediaKey, &createdAt,
			&p.LikeCount, &p.CommentCount, &liked); err != nil {
			return remote.Batch{}, fmt.Errorf("scan post: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0)
		p.LikedByMe = liked
		media := b.signMedia(p.MediaKey)
		p.Media = &media
		batch.Posts = append(batch.Posts, p)
		lastRowID = rowid
	}
	if err := rows.Err(); err != nil {
		return remote.Batch{}, fmt.Errorf("fetch posts: %w", err)
	}

	if len(batch.Posts) == limit {
		batch.NextCursor = strconv.FormatInt(lastRowID, 10)
	}
	return batch, nil
}

// Mutate applies one engagement mutation for actor and broadcasts the
// matching change record to every feed subscriber, tagged with that actor.
func (b *Backend) Mutate(ctx context.Context, actor post.ActorID, m remote.Mutation) (remote.Confirmation, error) {
	switch m.Kind {
	case remote.MutateLike:
		if err := b.requirePost(ctx, m.Post); err != nil {
			return remote.Confirmation{}, err
		}
		res, err := b.db.ExecContext(ctx,
			`INSERT INTO likes (post_id, actor) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			string(m.Post), string(actor))
		if err != nil {
			return remote.Confirmation{}, fmt.Errorf("like: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			b.hub.broadcast(remote.ChangeRecord{Post: m.Post, Kind: remote.ChangeLikeInsert, Actor: actor})
		}
		return b.confirmation(ctx, actor, m.Post, "")

	case remote.MutateUnlike:
		if err := b.requirePost(ctx, m.Post); err != nil {
			return remote.Confirmation{}, err
		}
		res, err := b.db.ExecContext(ctx,
			`DELETE FROM likes WHERE post_id = ? AND actor = ?`,
			string(m.Post), string(actor))
		if err != nil {
			return remote.Confirmation{}, fmt.Errorf("unlike: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			b.hub.broadcast(remote.ChangeRecord{Post: m.Post, Kind: remote.ChangeLikeDelete, Actor: actor})
		}
		return b.confirmation(ctx, actor, m.Post, "")

	case remote.MutateComment:
		if err := b.requirePost(ctx, m.Post); err != nil {
			return remote.Confirmation{}, err
		}
		if strings.TrimSpace(m.Comment) == "" {
			return remote.Confirmation{}, fmt.Errorf("comment body is empty")
		}
		commentID := uuid.NewString()
		_, err := b.db.ExecContext(ctx,
			`INSERT INTO comments (id, post_id, actor, body, created_at) VALUES (?, ?, ?, ?, ?)`,
			commentID, string(m.Post), string(actor), m.Comment, b.now().Unix())
		if err != nil {
			return remote.Confirmation{}, fmt.Errorf("comment: %w", err)
		}
		b.hub.broadcast(remote.ChangeRecord{Post: m.Post, Kind: remote.ChangeCommentInsert, Actor: actor})
		return b.confirmation(ctx, actor, m.Post, commentID)

	case remote.MutateDeleteComment:
		var postID string
		err := b.db.QueryRowContext(ctx,
			`SELECT post_id FROM comments WHERE id = ? AND actor = ?`,
			m.CommentID, string(actor)).Scan(&postID)
		if errors.Is(err, sql.ErrNoRows) {
			return remote.Confirmation{}, fmt.Errorf("comment %s: %w", m.CommentID, ErrNotFound)
		}
		if err != nil {
			return remote.Confirmation{}, fmt.Errorf("delete comment: %w", err)
		}
		if _, err := b.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, m.CommentID); err != nil {
			return remote.Confirmation{}, fmt.Errorf("delete comment: %w", err)
		}
		b.hub.broadcast(remote.ChangeRecord{Post: post.ID(postID), Kind: remote.ChangeCommentDelete, Actor: actor})
		return b.confirmation(ctx, actor, post.ID(postID), "")

	case remote.MutateDeletePost:
		res, err := b.db.ExecContext(ctx,
			`DELETE FROM posts WHERE id = ? AND author = ?`,
			string(m.Post), string(actor))
		if err != nil {
			return remote.Confirmation{}, fmt.Errorf("delete post: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return remote.Confirmation{}, fmt.Errorf("post %s: %w", m.Post, ErrNotFound)
		}
		// Counter rows cascade away; the post itself is gone, so the feed
		// carries no records for it (the stream is counter rows only).
		return remote.Confirmation{Post: m.Post}, nil

	case remote.MutateUnfollow:
		if _, err := b.db.ExecContext(ctx,
			`DELETE FROM follows WHERE follower = ? AND followee = ?`,
			string(actor), string(m.Author)); err != nil {
			return remote.Confirmation{}, fmt.Errorf("unfollow: %w", err)
		}
		return remote.Confirmation{}, nil

	default:
		return remote.Confirmation{}, fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}

// ResolveMedia mints fresh signed locators for the keys that still exist.
// Unknown keys are absent from the result, not errors.
func (b *Backend) ResolveMedia(ctx context.Context, keys []post.MediaKey) (map[post.MediaKey]post.Media, error) {
	out := make(map[post.MediaKey]post.Media, len(keys))
	for _, key := range keys {
		var exists bool
		err := b.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM posts WHERE media_key = ?)`, string(key)).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("resolve media: %w", err)
		}
		if exists {
			out[key] = b.signMedia(key)
		}
	}
	return out, nil
}

// CreatePost seeds one post and returns its id.
func (b *Backend) CreatePost(ctx context.Context, author post.ActorID, caption string, key post.MediaKey) (post.ID, error) {
	id := post.ID(uuid.NewString())
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO posts (id, author, caption, media_key, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(id), string(author), post.NormalizeCaption(caption), string(key), b.now().Unix())
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	return id, nil
}

// CommentIDs returns the ids of a post's comments in creation order. Test
// drivers use it to address comments minted by earlier mutations.
func (b *Backend) CommentIDs(ctx context.Context, id post.ID) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id FROM comments WHERE post_id = ? ORDER BY rowid`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var commentID string
		if err := rows.Scan(&commentID); err != nil {
			return nil, fmt.Errorf("scan comment id: %w", err)
		}
		ids = append(ids, commentID)
	}
	return ids, rows.Err()
}

// Follow seeds a follow edge.
func (b *Backend) Follow(ctx context.Context, follower, followee post.ActorID) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO follows (follower, followee) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		string(follower), string(followee))
	if err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	return nil
}

func (b *Backend) requirePost(ctx context.Context, id post.ID) error {
	var exists bool
	if err := b.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)`, string(id)).Scan(&exists); err != nil {
		return fmt.Errorf("check post: %w", err)
	}
	if !exists {
		return fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	return nil
}

// confirmation reads the authoritative engagement state after a mutation.
func (b *Backend) confirmation(ctx context.Context, actor post.ActorID, id post.ID, commentID string) (remote.Confirmation, error) {
	var conf remote.Confirmation
	conf.Post = id
	conf.CommentID = commentID
	err := b.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM likes WHERE post_id = ?),
		       (SELECT COUNT(*) FROM comments WHERE post_id = ?),
		       EXISTS(SELECT 1 FROM likes WHERE post_id = ? AND actor = ?)`,
		string(id), string(id), string(id), string(actor)).
		Scan(&conf.LikeCount, &conf.CommentCount, &conf.Liked)
	if err != nil {
		return remote.Confirmation{}, fmt.Errorf("read confirmation: %w", err)
	}
	return conf, nil
}

// signMedia mints a time-limited signed locator for a storage key.
func (b *Backend) signMedia(key post.MediaKey) post.Media {
	return post.Media{
		URL: (&url.URL{
			Scheme:   "https",
			Host:     "media.kinnect.local",
			Path:     "/" + string(key),
			RawQuery: url.Values{"sig": {uuid.NewString()}}.Encode(),
		}).String(),
		ExpiresAt: b.now().Add(b.signTTL),
	}
}
