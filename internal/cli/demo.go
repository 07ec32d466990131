package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/kpfister44/Kinnect-sub000/internal/backend"
	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/config"
	"github.com/kpfister44/Kinnect-sub000/internal/engine"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/remote"
	"github.com/kpfister44/Kinnect-sub000/internal/testutil"
)

// DemoResult is the demo command's JSON payload.
type DemoResult struct {
	Actor string              `json:"actor"`
	Trace []engine.TraceEvent `json:"trace"`
	Feed  []DemoPost          `json:"feed"`
}

// DemoPost is one rendered feed entry.
type DemoPost struct {
	Author   string `json:"author"`
	Caption  string `json:"caption"`
	Likes    int64  `json:"likes"`
	Comments int64  `json:"comments"`
	Liked    bool   `json:"liked"`
}

// NewDemoCommand creates the demo command: a scripted in-process session
// showing optimistic mutation, cross-scope propagation, and feed
// reconciliation end to end.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted engine session",
		Long: `Run a scripted session against an in-memory backend as the user
"alice": load the feed, like and comment on a followed post, receive
another user's like over the change feed, and print the engine trace.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}
			return runDemo(cmd.Context(), formatter)
		},
	}
	return cmd
}

func runDemo(ctx context.Context, formatter *OutputFormatter) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewClock(time.Time{})

	b, err := backend.Open(":memory:", backend.WithClock(clock.Now), backend.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "open backend", err)
	}
	defer b.Close()
	if err := seedDemo(ctx, b); err != nil {
		return WrapExitError(ExitCommandError, "seed demo data", err)
	}

	cfg := config.Default()
	cfg.Actor = "alice"
	recorder := engine.NewMemoryRecorder()
	client := b.ClientFor("alice")
	eng := engine.New(cfg, client, client,
		engine.WithLogger(logger),
		engine.WithClock(clock.Now),
		engine.WithIDGenerator(testutil.NewSequenceIDGenerator("req")),
		engine.WithRecorder(recorder),
	)

	feed, cancelFeed := b.Subscribe()
	defer cancelFeed()
	deliver := func() {
		for {
			select {
			case record := <-feed:
				eng.ApplyChange(record)
			default:
				return
			}
		}
	}

	eng.Open(cache.MainFeed)
	eng.Open(cache.Profile("bob"))

	result, err := eng.Load(ctx, cache.MainFeed)
	if err != nil {
		return WrapExitError(ExitFailure, "load main feed", err)
	}
	if _, err := eng.Load(ctx, cache.Profile("bob")); err != nil {
		return WrapExitError(ExitFailure, "load profile", err)
	}

	// Alice engages with bob's post; the echoing feed records are skipped.
	var bobPost post.ID
	for _, p := range result.Posts {
		if p.Author == "bob" {
			bobPost = p.ID
			break
		}
	}
	if bobPost != "" {
		if err := eng.Like(ctx, cache.MainFeed, bobPost); err != nil {
			return WrapExitError(ExitFailure, "like", err)
		}
		if err := eng.Comment(ctx, cache.MainFeed, bobPost, "what a morning"); err != nil {
			return WrapExitError(ExitFailure, "comment", err)
		}
		deliver()

		// Carol likes the same post remotely; this one applies.
		if _, err := b.ClientFor("carol").Mutate(ctx, remote.Mutation{Kind: remote.MutateLike, Post: bobPost}); err != nil {
			return WrapExitError(ExitFailure, "remote like", err)
		}
		deliver()
	}

	store, _ := eng.Store(cache.MainFeed)
	demo := DemoResult{Actor: "alice", Trace: recorder.Events()}
	for _, p := range store.Live() {
		demo.Feed = append(demo.Feed, DemoPost{
			Author:   string(p.Author),
			Caption:  p.Caption,
			Likes:    p.LikeCount,
			Comments: p.CommentCount,
			Liked:    p.LikedByMe,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(demo)
	}
	return printDemo(formatter, demo)
}

func printDemo(formatter *OutputFormatter, demo DemoResult) error {
	fmt.Fprintf(formatter.Writer, "engine trace (%s):\n", demo.Actor)
	for _, event := range demo.Trace {
		line := fmt.Sprintf("  [%2d] %-10s", event.Seq, event.Type)
		if event.Scope != "" {
			line += " scope=" + string(event.Scope)
		}
		if event.Post != "" {
			line += " post=" + string(event.Post)
		}
		if event.Detail != "" {
			line += " " + event.Detail
		}
		fmt.Fprintln(formatter.Writer, line)
	}

	fmt.Fprintln(formatter.Writer, "\nmain feed:")
	for _, p := range demo.Feed {
		liked := " "
		if p.Liked {
			liked = "*"
		}
		fmt.Fprintf(formatter.Writer, "  %s %-8s %-18s likes=%d comments=%d\n",
			liked, p.Author, p.Caption, p.Likes, p.Comments)
	}
	return nil
}
