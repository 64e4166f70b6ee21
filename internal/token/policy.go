package token

import "time"

// Kind distinguishes the two credential levels in the refresh chain.
type Kind string

const (
	KindOwner   Kind = "owner"
	KindChannel Kind = "channel"
)

// Provider-imposed maximum ages. Owner-level user tokens are long-lived;
// channel-level page tokens expire daily.
const (
	OwnerTokenMaxAge   = 60 * 24 * time.Hour
	ChannelTokenMaxAge = 24 * time.Hour
)

// MaxAge returns the policy threshold for a credential kind.
func MaxAge(kind Kind) time.Duration {
	if kind == KindOwner {
		return OwnerTokenMaxAge
	}
	return ChannelTokenMaxAge
}

// IsExpired reports whether a credential refreshed at refreshedAt has
// outlived its policy threshold at time now. A credential at exactly the
// threshold is still valid.
func IsExpired(refreshedAt time.Time, kind Kind, now time.Time) bool {
	return now.Sub(refreshedAt) > MaxAge(kind)
}
