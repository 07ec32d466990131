// Package visibility tracks which store scopes are on screen and which media
// fetches died while they were not.
//
// When a surface leaves the screen its in-flight media fetches get cancelled
// by the view lifecycle. Cancellation is not a failure; it is input. The
// tracker records the cancelled ids per scope, and when the surface comes
// back it hands the engine exactly that set to repair: bump those posts'
// reload counters and re-resolve just their locators.
//
// The alternative, invalidating the whole cache on every visibility flicker,
// is correct but punishes the common case where most locators loaded fine.
//
// A fetch that merely starts while the scope is invisible sets a pending
// flag, so the next visible transition still repairs even when cancellation
// and completion interleaved in an unobservable order.
//
// The tracker never drives itself: visibility transitions come from the UI
// layer through the engine's OnBecameVisible/OnBecameInvisible surface.
package visibility
