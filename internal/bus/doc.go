// Package bus implements the cross-store notification channel.
//
// Stores that hold overlapping entities cannot reference each other directly;
// instead every store subscribes to one shared Bus and reacts to tagged
// mutation events published by its siblings. The bus is an injectable value
// passed at construction, never a package global, so tests can stand up
// isolated buses and doubles.
//
// Delivery model: synchronous fan-out in subscribe order. Events are
// delivered to each subscriber in publish order; there is no queueing and no
// backpressure. A handler must be fast and must never publish re-entrantly
// for the same logical change.
//
// The one rule that makes fan-out safe is self-skip: every event carries the
// origin scope that produced it, and a subscriber for that same scope returns
// without touching state. The originating store already applied the change
// optimistically before publishing, so its "exactly once" already happened.
package bus
