// Package post defines the entity model shared by every layer of the sync
// engine.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import post; post imports nothing internal. This keeps
// the entity model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Counters are int64 and never negative; every mutation path clamps at zero
//   - A Post with no media locator must never be surfaced as render-ready
//   - All JSON tags use snake_case
package post
