package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kpfister44/Kinnect-sub000/internal/backend"
	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/config"
	"github.com/kpfister44/Kinnect-sub000/internal/engine"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/remote"
	"github.com/kpfister44/Kinnect-sub000/internal/testutil"
)

// Harness executes one scenario against a real engine wired to an in-memory
// backend. The clock is frozen, fetch request ids are sequential, and feed
// records are delivered synchronously, so the recorded trace is byte-stable.
type Harness struct {
	backend  *backend.Backend
	engine   *engine.Engine
	clock    *testutil.Clock
	recorder *engine.MemoryRecorder
	logger   *slog.Logger

	feed       <-chan remote.ChangeRecord
	cancelFeed func()

	actor    post.ActorID
	aliases  map[string]post.ID // seed alias -> backend id
	reverse  map[post.ID]string
	comments map[string]string // save_as alias -> comment id
	open     map[string]bool
}

// Run executes a scenario end to end and returns the result. Each scenario
// gets a fresh in-memory backend and engine.
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewClock(time.Time{})

	b, err := backend.Open(":memory:",
		backend.WithClock(clock.Now),
		backend.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	defer b.Close()

	h := &Harness{
		backend:  b,
		clock:    clock,
		recorder: engine.NewMemoryRecorder(),
		logger:   logger,
		actor:    post.ActorID(scenario.Actor),
		aliases:  make(map[string]post.ID),
		reverse:  make(map[post.ID]string),
		comments: make(map[string]string),
		open:     make(map[string]bool),
	}

	ctx := context.Background()
	if err := h.seed(ctx, scenario.Seed); err != nil {
		return nil, err
	}

	cfg := config.Default()
	cfg.Actor = scenario.Actor
	client := b.ClientFor(h.actor)
	h.engine = engine.New(cfg, client, client,
		engine.WithLogger(logger),
		engine.WithClock(clock.Now),
		engine.WithIDGenerator(testutil.NewSequenceIDGenerator("req")),
		engine.WithRecorder(h.recorder),
	)

	for _, scope := range scenario.Scopes {
		h.engine.Open(cache.Scope(scope))
		h.open[scope] = true
	}

	// One feed subscription for the whole run; deliver-feed steps drain it
	// through the reconciler synchronously.
	h.feed, h.cancelFeed = b.Subscribe()
	defer h.cancelFeed()

	result := &Result{Pass: true}
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Action, err))
		}
	}

	result.Trace = h.aliasedTrace()
	result.State = h.finalState()
	for _, msg := range evaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) seed(ctx context.Context, seed Seed) error {
	for _, p := range seed.Posts {
		id, err := h.backend.CreatePost(ctx, post.ActorID(p.Author), p.Caption, post.MediaKey("media/"+p.Alias))
		if err != nil {
			return fmt.Errorf("seed post %s: %w", p.Alias, err)
		}
		h.aliases[p.Alias] = id
		h.reverse[id] = p.Alias
	}
	for _, f := range seed.Follows {
		if err := h.backend.Follow(ctx, post.ActorID(f.Follower), post.ActorID(f.Followee)); err != nil {
			return fmt.Errorf("seed follow %s -> %s: %w", f.Follower, f.Followee, err)
		}
	}
	return nil
}

// postID resolves a seed alias; unknown aliases pass through as raw ids so
// scenarios can target posts the backend never had.
func (h *Harness) postID(alias string) post.ID {
	if id, ok := h.aliases[alias]; ok {
		return id
	}
	return post.ID(alias)
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	if step.Actor != "" && string(h.actor) != step.Actor {
		return h.executeRemote(ctx, step)
	}

	scope := cache.Scope(step.Scope)
	switch step.Action {
	case StepLoad:
		_, err := h.engine.Load(ctx, scope)
		return h.checkError(step, err)
	case StepRefresh:
		_, err := h.engine.Refresh(ctx, scope)
		return h.checkError(step, err)
	case StepLoadMore:
		_, err := h.engine.LoadMore(ctx, scope)
		return h.checkError(step, err)

	case StepLike:
		return h.checkError(step, h.engine.Like(ctx, scope, h.postID(step.Post)))
	case StepUnlike:
		return h.checkError(step, h.engine.Unlike(ctx, scope, h.postID(step.Post)))
	case StepComment:
		err := h.engine.Comment(ctx, scope, h.postID(step.Post), step.Comment)
		if err == nil && step.SaveAs != "" {
			if saveErr := h.saveLatestComment(ctx, step); saveErr != nil {
				return saveErr
			}
		}
		return h.checkError(step, err)
	case StepDeleteComment:
		commentID, ok := h.comments[step.CommentID]
		if !ok {
			return fmt.Errorf("comment alias %q has no saved id", step.CommentID)
		}
		return h.checkError(step, h.engine.DeleteComment(ctx, scope, h.postID(step.Post), commentID))
	case StepDeletePost:
		return h.checkError(step, h.engine.DeletePost(ctx, scope, h.postID(step.Post)))
	case StepUnfollow:
		return h.checkError(step, h.engine.Unfollow(ctx, scope, post.ActorID(step.Author)))

	case StepOpen:
		h.engine.Open(scope)
		h.open[step.Scope] = true
		return nil
	case StepClose:
		h.engine.Close(scope)
		delete(h.open, step.Scope)
		return nil
	case StepHide:
		h.engine.OnBecameInvisible(scope)
		return nil
	case StepShow:
		return h.engine.OnBecameVisible(ctx, scope)
	case StepMediaStart:
		h.engine.MediaStarted(scope, h.postID(step.Post))
		return nil
	case StepMediaCancel:
		h.engine.MediaCancelled(scope, h.postID(step.Post))
		return nil

	case StepAdvance:
		d, err := step.duration()
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		return nil
	case StepDeliverFeed:
		h.drainFeed()
		return nil
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

// executeRemote performs an engagement step as a non-local peer, straight
// against the backend. The broadcast record sits in the feed buffer until a
// deliver-feed step hands it to the engine.
func (h *Harness) executeRemote(ctx context.Context, step Step) error {
	actor := post.ActorID(step.Actor)
	var m remote.Mutation
	switch step.Action {
	case StepLike:
		m = remote.Mutation{Kind: remote.MutateLike, Post: h.postID(step.Post)}
	case StepUnlike:
		m = remote.Mutation{Kind: remote.MutateUnlike, Post: h.postID(step.Post)}
	case StepComment:
		m = remote.Mutation{Kind: remote.MutateComment, Post: h.postID(step.Post), Comment: step.Comment}
	case StepDeleteComment:
		commentID, ok := h.comments[step.CommentID]
		if !ok {
			return fmt.Errorf("comment alias %q has no saved id", step.CommentID)
		}
		m = remote.Mutation{Kind: remote.MutateDeleteComment, CommentID: commentID}
	case StepDeletePost:
		m = remote.Mutation{Kind: remote.MutateDeletePost, Post: h.postID(step.Post)}
	case StepUnfollow:
		m = remote.Mutation{Kind: remote.MutateUnfollow, Author: post.ActorID(step.Author)}
	default:
		return fmt.Errorf("action %q cannot be performed by a remote actor", step.Action)
	}

	conf, err := h.backend.Mutate(ctx, actor, m)
	if err != nil {
		return fmt.Errorf("remote actor %s: %w", actor, err)
	}
	if step.SaveAs != "" {
		h.comments[step.SaveAs] = conf.CommentID
	}
	return nil
}

// saveLatestComment records the id the backend minted for a local comment,
// which the engine path does not surface.
func (h *Harness) saveLatestComment(ctx context.Context, step Step) error {
	ids, err := h.backend.CommentIDs(ctx, h.postID(step.Post))
	if err != nil {
		return fmt.Errorf("save comment %q: %w", step.SaveAs, err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("save comment %q: no comments on post %s", step.SaveAs, step.Post)
	}
	h.comments[step.SaveAs] = ids[len(ids)-1]
	return nil
}

// checkError reconciles a step's outcome with its expect_error clause.
func (h *Harness) checkError(step Step, err error) error {
	if step.ExpectError == "" {
		return err
	}
	if err == nil {
		return fmt.Errorf("expected error %s, step succeeded", step.ExpectError)
	}
	var oe *engine.OpError
	if !errors.As(err, &oe) || string(oe.Code) != step.ExpectError {
		return fmt.Errorf("expected error %s, got: %v", step.ExpectError, err)
	}
	return nil
}

// drainFeed hands every buffered change record to the engine's reconciler,
// in broadcast order.
func (h *Harness) drainFeed() {
	for {
		select {
		case record := <-h.feed:
			h.engine.ApplyChange(record)
		default:
			return
		}
	}
}

// aliasedTrace rewrites backend post ids back to seed aliases so traces are
// deterministic.
func (h *Harness) aliasedTrace() []engine.TraceEvent {
	events := h.recorder.Events()
	for i := range events {
		if alias, ok := h.reverse[events[i].Post]; ok {
			events[i].Post = post.ID(alias)
		}
	}
	return events
}

// finalState snapshots the live sequence of every scope still open.
func (h *Harness) finalState() map[string][]PostState {
	state := make(map[string][]PostState, len(h.open))
	for scope := range h.open {
		store, ok := h.engine.Store(cache.Scope(scope))
		if !ok {
			continue
		}
		posts := store.Live()
		out := make([]PostState, 0, len(posts))
		for _, p := range posts {
			name := string(p.ID)
			if alias, ok := h.reverse[p.ID]; ok {
				name = alias
			}
			out = append(out, PostState{
				Post:       name,
				Author:     string(p.Author),
				Likes:      p.LikeCount,
				Comments:   p.CommentCount,
				Liked:      p.LikedByMe,
				MediaReady: p.MediaReady(),
			})
		}
		state[scope] = out
	}
	return state
}
