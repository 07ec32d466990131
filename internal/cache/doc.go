// Package cache implements the per-scope snapshot store at the heart of the
// sync engine.
//
// Each UI surface (the main feed, a profile grid) owns one Store. A Store
// holds two views of the same entities:
//
//   - the live sequence: the ordered posts the surface is currently rendering
//   - the shadow snapshot: the last accepted full fetch, served for instant
//     reload while it is fresh or aging
//
// Every counter or media mutation is applied to both views under one lock so
// a cache-served reload can never regress a count the user already saw.
//
// Freshness is derived, never stored: a snapshot younger than the staleness
// threshold is Fresh, older than the expiry threshold is Expired, Aging in
// between. Fresh and Aging both serve from cache; Expired forces the caller
// back to the remote service.
//
// Thread-safety model: one coarse mutex per Store. Mutations to a single
// entity within one store are serialized; there is no ordering across stores.
package cache
