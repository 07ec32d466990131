// Package mutate implements the optimistic mutation executor.
//
// Every user action follows the same arc: capture the pre-mutation state,
// apply the guessed delta to the owning store synchronously, then make the
// remote call. Success publishes a tagged event on the bus so sibling stores
// catch up; failure restores the captured state bit for bit and publishes
// nothing, because nothing happened remotely.
//
// Deletions cannot be rolled back with an inverse delta (removal loses the
// entity), so the delete paths capture a full store snapshot instead.
package mutate
