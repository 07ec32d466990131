package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

// Store is the per-scope snapshot store. See the package documentation for
// the live/shadow split and the freshness model.
//
// All exported methods are safe for concurrent use; every mutation runs under
// the store's single mutex.
type Store struct {
	scope     Scope
	staleness time.Duration
	expiry    time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu        sync.Mutex
	live      []post.Post
	shadow    []post.Post
	writtenAt time.Time // zero means never written
	reloads   map[post.ID]int64
	closed    bool
}

// Option configures a Store at construction.
type Option func(*Store)

// WithThresholds overrides the staleness and expiry ages.
func WithThresholds(staleness, expiry time.Duration) Option {
	return func(s *Store) {
		s.staleness = staleness
		s.expiry = expiry
	}
}

// WithClock overrides the wall clock. Tests pin freshness boundaries with a
// fake clock; production uses time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates an empty store for the given scope.
func New(scope Scope, opts ...Option) *Store {
	s := &Store{
		scope:     scope,
		staleness: DefaultStaleness,
		expiry:    DefaultExpiry,
		now:       time.Now,
		logger:    slog.Default(),
		reloads:   make(map[post.ID]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scope returns the scope this store serves.
func (s *Store) Scope() Scope { return s.scope }

// Close marks the store dead. A closed store ignores every subsequent
// mutation: a delayed bus event or feed record arriving after teardown must
// not touch state the UI no longer owns.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Read returns the shadow snapshot and its freshness. Fresh and aging
// snapshots are servable; an expired or never-written scope returns
// (nil, Expired) and the caller is expected to fetch remotely.
func (s *Store) Read() ([]post.Post, Freshness) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.freshnessLocked()
	if !f.Servable() {
		return nil, Expired
	}
	return clonePosts(s.shadow), f
}

// Freshness classifies the shadow snapshot without returning it.
func (s *Store) Freshness() Freshness {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freshnessLocked()
}

func (s *Store) freshnessLocked() Freshness {
	if s.writtenAt.IsZero() {
		return Expired
	}
	return classify(s.now().Sub(s.writtenAt), s.staleness, s.expiry)
}

// Write replaces the shadow snapshot with a fully hydrated batch.
//
// Acceptance is all-or-nothing: if any entity lacks a hydrated media locator
// the whole batch is rejected (logged, previous snapshot untouched). Caching
// a partially hydrated set would silently serve broken renders on the next
// fast-path read.
func (s *Store) Write(posts []post.Post) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	for i := range posts {
		if !posts[i].MediaReady() {
			s.logger.Warn("cache write rejected: batch not fully hydrated",
				"scope", s.scope,
				"post", posts[i].ID,
				"batch_size", len(posts),
			)
			return false
		}
	}

	s.shadow = clonePosts(posts)
	s.writtenAt = s.now()
	return true
}

// SetLive replaces the live rendering sequence. Unlike Write this never
// rejects: a partially hydrated batch is still rendered (with placeholders),
// it just is not cached.
func (s *Store) SetLive(posts []post.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.live = clonePosts(posts)
}

// AppendLive appends a page to the live sequence, skipping ids already
// present. Returns the number of posts appended.
func (s *Store) AppendLive(posts []post.Post) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}
	seen := make(map[post.ID]struct{}, len(s.live))
	for i := range s.live {
		seen[s.live[i].ID] = struct{}{}
	}
	n := 0
	for i := range posts {
		if _, dup := seen[posts[i].ID]; dup {
			continue
		}
		s.live = append(s.live, posts[i].Clone())
		n++
	}
	return n
}

// Live returns a copy of the live rendering sequence.
func (s *Store) Live() []post.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePosts(s.live)
}

// Len returns the length of the live sequence.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Get returns a copy of the post with the given id, preferring the live
// entry over the shadow one.
func (s *Store) Get(id post.ID) (post.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := indexOf(s.live, id); i >= 0 {
		return s.live[i].Clone(), true
	}
	if i := indexOf(s.shadow, id); i >= 0 {
		return s.shadow[i].Clone(), true
	}
	return post.Post{}, false
}

// Mutate applies a counter/boolean patch to one post in both the live
// sequence and the shadow snapshot. Missing ids are a silent no-op (the
// entity may have scrolled out or been deleted concurrently); the return
// value reports whether anything changed.
func (s *Store) Mutate(id post.ID, patch post.Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	applied := false
	if i := indexOf(s.live, id); i >= 0 {
		patch.Apply(&s.live[i])
		applied = true
	}
	if i := indexOf(s.shadow, id); i >= 0 {
		patch.Apply(&s.shadow[i])
		applied = true
	}
	return applied
}

// SetEngagement overwrites one post's counters and liked flag with
// remote-confirmed values, in both views. Used when the optimistic guess and
// the confirmed state disagree.
func (s *Store) SetEngagement(id post.ID, likes, comments int64, liked bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	set := func(p *post.Post) {
		p.LikeCount = likes
		p.CommentCount = comments
		p.LikedByMe = liked
	}
	applied := false
	if i := indexOf(s.live, id); i >= 0 {
		set(&s.live[i])
		applied = true
	}
	if i := indexOf(s.shadow, id); i >= 0 {
		set(&s.shadow[i])
		applied = true
	}
	return applied
}

// ApplyMedia installs a freshly hydrated locator on one post in both views.
func (s *Store) ApplyMedia(id post.ID, media post.Media) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	applied := false
	if i := indexOf(s.live, id); i >= 0 {
		m := media
		s.live[i].Media = &m
		applied = true
	}
	if i := indexOf(s.shadow, id); i >= 0 {
		m := media
		s.shadow[i].Media = &m
		applied = true
	}
	return applied
}

// Remove deletes one post from both views and drops its reload counter.
func (s *Store) Remove(id post.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	removed := false
	if i := indexOf(s.live, id); i >= 0 {
		s.live = append(s.live[:i], s.live[i+1:]...)
		removed = true
	}
	if i := indexOf(s.shadow, id); i >= 0 {
		s.shadow = append(s.shadow[:i], s.shadow[i+1:]...)
		removed = true
	}
	if removed {
		delete(s.reloads, id)
	}
	return removed
}

// RemoveAuthor deletes every post by the given author from both views.
// Returns the number of distinct ids removed.
func (s *Store) RemoveAuthor(author post.ActorID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}
	removed := make(map[post.ID]struct{})
	s.live = filterAuthor(s.live, author, removed)
	s.shadow = filterAuthor(s.shadow, author, removed)
	for id := range removed {
		delete(s.reloads, id)
	}
	return len(removed)
}

// Invalidate drops the shadow snapshot. The live sequence is left alone: the
// surface keeps rendering what it has until the next load.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.shadow = nil
	s.writtenAt = time.Time{}
}

// Snapshot captures the full store state for rollback. Removal is not
// reversible via delta, so delete-style mutations restore a snapshot instead
// of applying an inverse patch.
type Snapshot struct {
	live      []post.Post
	shadow    []post.Post
	writtenAt time.Time
}

// Snapshot deep-copies the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		live:      clonePosts(s.live),
		shadow:    clonePosts(s.shadow),
		writtenAt: s.writtenAt,
	}
}

// Restore replaces the store state with a previously captured snapshot.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.live = clonePosts(snap.live)
	s.shadow = clonePosts(snap.shadow)
	s.writtenAt = snap.writtenAt
}

// BumpReload increments the reload-attempt counter for each id still known
// to the store. The rendering layer keys media re-fetches off this counter,
// so bumping exactly the affected ids forces those loaders (and only those)
// to run again.
func (s *Store) BumpReload(ids []post.ID) []post.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	bumped := make([]post.ID, 0, len(ids))
	for _, id := range ids {
		if indexOf(s.live, id) < 0 && indexOf(s.shadow, id) < 0 {
			continue // deleted concurrently; nothing left to repair
		}
		s.reloads[id]++
		bumped = append(bumped, id)
	}
	return bumped
}

// ReloadAttempt returns the reload-attempt counter for one id.
func (s *Store) ReloadAttempt(id post.ID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads[id]
}

// MissingMedia returns the ids in the live sequence that lack a hydrated
// locator. These are the targets for partial-fetch repair.
func (s *Store) MissingMedia() []post.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []post.ID
	for i := range s.live {
		if !s.live[i].MediaReady() {
			ids = append(ids, s.live[i].ID)
		}
	}
	return ids
}

// ExpiringMedia returns the ids in the live sequence whose locator is absent
// or expires within the window. Used by the opt-in proactive re-hydration
// sweep.
func (s *Store) ExpiringMedia(window time.Duration) []post.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var ids []post.ID
	for i := range s.live {
		if s.live[i].Media.ExpiresWithin(now, window) {
			ids = append(ids, s.live[i].ID)
		}
	}
	return ids
}

// MediaKeys maps the given ids to their storage keys, skipping unknown ids.
func (s *Store) MediaKeys(ids []post.ID) map[post.ID]post.MediaKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[post.ID]post.MediaKey, len(ids))
	for _, id := range ids {
		if i := indexOf(s.live, id); i >= 0 {
			keys[id] = s.live[i].MediaKey
		} else if i := indexOf(s.shadow, id); i >= 0 {
			keys[id] = s.shadow[i].MediaKey
		}
	}
	return keys
}

func indexOf(posts []post.Post, id post.ID) int {
	for i := range posts {
		if posts[i].ID == id {
			return i
		}
	}
	return -1
}

func filterAuthor(posts []post.Post, author post.ActorID, removed map[post.ID]struct{}) []post.Post {
	kept := posts[:0]
	for i := range posts {
		if posts[i].Author == author {
			removed[posts[i].ID] = struct{}{}
			continue
		}
		kept = append(kept, posts[i])
	}
	return kept
}

func clonePosts(posts []post.Post) []post.Post {
	if len(posts) == 0 {
		return nil
	}
	dup := make([]post.Post, len(posts))
	for i := range posts {
		dup[i] = posts[i].Clone()
	}
	return dup
}
