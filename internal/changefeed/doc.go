// Package changefeed consumes the backend's push stream of counter changes.
//
// The stream delivers every like/comment row insert and delete, including the
// ones the local actor just made. Those arrive after the optimistic executor
// already applied them, so the reconciler's first move on every record is the
// actor check: records tagged with the local actor's identity are skipped,
// everything else is applied to every live store.
//
// The actor check here and the bus's origin self-skip are the two halves of
// the same invariant on two propagation paths: each logical change reaches
// each store exactly once, regardless of delivery order.
//
// Stream errors are never fatal. The reconciler logs, backs off, and redials;
// the next successful fetch re-establishes ground truth anyway.
package changefeed
