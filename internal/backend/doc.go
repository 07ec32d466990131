// Package backend is an in-process Kinnect backend simulator.
//
// It implements the same contracts the production service exposes — post
// fetching, engagement mutations, signed-locator minting, and a change
// stream — over a local SQLite database. Integration tests, the scenario
// harness, and the `kinnect serve` / `kinnect demo` commands all run against
// it.
//
// The simulator deliberately mirrors production quirks the engine must
// handle: every mutation the local actor performs also comes back through
// the change stream tagged with that actor, exactly as the real
// counter-row feed would deliver it.
package backend
