package cache

import (
	"strings"

	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

// Scope names an independent store of entities bound to one UI surface.
// The same post may live in several scopes at once; cross-scope consistency
// is the notification bus's job, never the store's.
type Scope string

// MainFeed is the home timeline scope.
const MainFeed Scope = "main-feed"

const profilePrefix = "profile:"

// Profile returns the scope for one user's profile surface (grid and
// profile-scoped feed share it).
func Profile(actor post.ActorID) Scope {
	return Scope(profilePrefix + string(actor))
}

// ProfileActor extracts the actor from a profile scope. ok is false for
// non-profile scopes.
func (s Scope) ProfileActor() (post.ActorID, bool) {
	if !strings.HasPrefix(string(s), profilePrefix) {
		return "", false
	}
	return post.ActorID(strings.TrimPrefix(string(s), profilePrefix)), true
}

func (s Scope) String() string { return string(s) }
