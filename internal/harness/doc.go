// Package harness replays declarative YAML scenarios against a real engine
// backed by an in-memory simulator.
//
// Each scenario seeds backend state, opens scopes, and replays a mixed
// sequence of local user actions, remote-peer mutations, feed deliveries,
// visibility flips, and clock advances. Determinism comes from three
// substitutions: a frozen testutil.Clock, sequential fetch request ids, and
// synchronous feed delivery through the engine's reconciler. The recorded
// trace can be asserted on directly or pinned with golden files.
package harness
