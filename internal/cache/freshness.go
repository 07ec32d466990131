package cache

import "time"

// Freshness classifies a cached snapshot by age.
type Freshness int

const (
	// Fresh snapshots are served from cache without reservation.
	Fresh Freshness = iota
	// Aging snapshots are still served from cache; the change feed keeps
	// their counters honest in the background.
	Aging
	// Expired snapshots (or scopes never written) force a remote refetch.
	Expired
)

// String implements fmt.Stringer for log output.
func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Aging:
		return "aging"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Servable reports whether a snapshot of this freshness may be handed to the
// caller instead of refetching.
func (f Freshness) Servable() bool {
	return f == Fresh || f == Aging
}

// DefaultStaleness is the age at which a snapshot stops being fresh.
const DefaultStaleness = 5 * time.Minute

// DefaultExpiry is the age at which a snapshot stops being servable at all.
const DefaultExpiry = 45 * time.Minute

// classify derives freshness from a snapshot age. The boundaries are
// half-open: age == staleness is already aging, age == expiry is already
// expired.
func classify(age, staleness, expiry time.Duration) Freshness {
	switch {
	case age < staleness:
		return Fresh
	case age < expiry:
		return Aging
	default:
		return Expired
	}
}
