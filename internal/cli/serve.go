package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kpfister44/Kinnect-sub000/internal/backend"
	"github.com/kpfister44/Kinnect-sub000/internal/config"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	DBPath string
	Addr   string
	Seed   bool
}

// NewServeCommand creates the serve command: the local dev backend the
// engine talks to.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local dev backend",
		Long: `Run the simulated Kinnect backend: the HTTP API plus the websocket
change stream, backed by a SQLite database.

Examples:
  kinnect serve
  kinnect serve --db kinnect.db --addr 127.0.0.1:8790
  kinnect serve --seed`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", ":memory:", "SQLite database path")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.Seed, "seed", false, "seed demo users and posts")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	addr := cfg.ListenAddr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	b, err := backend.Open(opts.DBPath, backend.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "open backend", err)
	}
	defer b.Close()

	if opts.Seed {
		if err := seedDemo(ctx, b); err != nil {
			return WrapExitError(ExitCommandError, "seed demo data", err)
		}
		logger.Info("demo data seeded")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Serve(ctx, addr); err != nil {
		return WrapExitError(ExitFailure, "serve", err)
	}
	return nil
}

// seedDemo loads a small fixed social graph: three users, a handful of
// posts, and the follow edges the demo session expects.
func seedDemo(ctx context.Context, b *backend.Backend) error {
	for _, f := range [][2]string{{"alice", "bob"}, {"alice", "carol"}, {"bob", "alice"}} {
		if err := b.Follow(ctx, post.ActorID(f[0]), post.ActorID(f[1])); err != nil {
			return err
		}
	}
	seeds := []struct {
		author  string
		caption string
		key     string
	}{
		{"bob", "harbor at dawn", "media/harbor"},
		{"carol", "ridge line", "media/ridge"},
		{"alice", "last light", "media/sunset"},
	}
	for _, s := range seeds {
		if _, err := b.CreatePost(ctx, post.ActorID(s.author), s.caption, post.MediaKey(s.key)); err != nil {
			return err
		}
	}
	return nil
}
