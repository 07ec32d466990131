// Package remote defines the engine's view of the backend service.
//
// The backend is opaque beyond three capabilities: fetch a collection of
// posts for a scope, apply one engagement mutation, and stream counter
// change records. Service and FeedDialer are the seams; the engine never
// depends on a concrete transport.
//
// Two implementations exist: the HTTP+WebSocket client in this package
// (production shape) and the in-process backend simulator (internal/backend)
// used by tests and the demo loop.
package remote
