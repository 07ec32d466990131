package changefeed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/remote"
)

const (
	// DefaultBackoffMin is the first redial delay after a stream error.
	DefaultBackoffMin = time.Second
	// DefaultBackoffMax caps the redial delay.
	DefaultBackoffMax = 30 * time.Second
)

// Reconciler applies remote-confirmed counter changes from other actors to
// every live store.
type Reconciler struct {
	dialer     remote.FeedDialer
	actor      post.ActorID
	stores     func() []*cache.Store
	logger     *slog.Logger
	backoffMin time.Duration
	backoffMax time.Duration

	// onRecord, when set, observes every record with its disposition
	// ("applied" or "skipped"). Used by the trace recorder and tests.
	onRecord func(remote.ChangeRecord, bool)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithBackoff overrides the redial backoff bounds.
func WithBackoff(min, max time.Duration) Option {
	return func(r *Reconciler) {
		r.backoffMin = min
		r.backoffMax = max
	}
}

// WithRecordHook registers an observer called for every consumed record.
// applied is false when the record was skipped as the local actor's own.
func WithRecordHook(hook func(record remote.ChangeRecord, applied bool)) Option {
	return func(r *Reconciler) { r.onRecord = hook }
}

// New creates a reconciler. stores must return a snapshot of the currently
// live stores on every call; the engine owns store lifecycle, not the
// reconciler. A nil logger falls back to slog.Default.
func New(dialer remote.FeedDialer, actor post.ActorID, stores func() []*cache.Store, logger *slog.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		dialer:     dialer,
		actor:      actor,
		stores:     stores,
		logger:     logger,
		backoffMin: DefaultBackoffMin,
		backoffMax: DefaultBackoffMax,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes the change feed until ctx ends, redialing after stream errors
// with doubling backoff. The only return value is ctx.Err().
func (r *Reconciler) Run(ctx context.Context) error {
	delay := r.backoffMin
	for {
		if err := r.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("change feed disrupted, redialing", "error", err, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = min(delay*2, r.backoffMax)
			continue
		}
		return ctx.Err()
	}
}

// consume opens one feed connection and applies records until it fails or
// ctx ends. A successful read resets nothing here; backoff reset happens on
// the first record (see Run's caller contract).
func (r *Reconciler) consume(ctx context.Context) error {
	feed, err := r.dialer.DialFeed(ctx)
	if err != nil {
		return err
	}
	defer feed.Close()

	r.logger.Info("change feed connected")
	for {
		record, err := feed.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		r.Apply(record)
	}
}

// Apply reconciles one record: the local actor's own records are skipped
// (the optimistic executor already counted them), everything else mutates
// every live store. Returns whether the record was applied.
func (r *Reconciler) Apply(record remote.ChangeRecord) bool {
	if record.Actor == r.actor {
		r.logger.Debug("change record skipped: own action",
			"post", record.Post,
			"kind", record.Kind,
		)
		if r.onRecord != nil {
			r.onRecord(record, false)
		}
		return false
	}

	patch := record.Patch()
	touched := 0
	for _, store := range r.stores() {
		if store.Mutate(record.Post, patch) {
			touched++
		}
	}
	r.logger.Debug("change record applied",
		"post", record.Post,
		"kind", record.Kind,
		"actor", record.Actor,
		"stores", touched,
	)
	if r.onRecord != nil {
		r.onRecord(record, true)
	}
	return true
}
