// Package engine wires the sync machinery into one client-facing surface.
//
// The Engine owns the per-scope stores, their bus subscriptions, the
// change-feed reconciler, and the visibility tracker. UI code talks only to
// the Engine: open and close scopes, load feeds, perform user actions, and
// forward visibility signals. Everything else — optimistic application,
// cross-store fan-out, actor-skip reconciliation, targeted media repair —
// happens behind this surface.
//
// A logical change reaches every store exactly once through two independent
// channels:
//
//   - the notification bus carries locally-originated mutations to sibling
//     stores, skipping the origin scope
//   - the change feed carries remote-confirmed mutations from all actors,
//     skipping the local actor's own
//
// Fetches race: a newer Load for a scope supersedes the older one, and the
// older completion is dropped by request-id comparison, silently.
//
// No error here is fatal. Remote failures roll back and surface to the user;
// stream failures redial; the worst case is a stale or reverted view the
// user can force-refresh.
package engine
