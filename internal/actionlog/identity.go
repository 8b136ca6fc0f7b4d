package actionlog

import "strings"

// Signals carries the optional authentication values read from a request.
// Empty strings mean the signal was absent.
type Signals struct {
	// User is the authenticated-user header (X-Auth-User).
	User string
	// Token is the auth token header (X-Auth-Token). Under noauth deployments it
	// has the form "username:secret".
	Token string
}

// IdentityRule is one step of the actor fallback chain.
type IdentityRule struct {
	Name    string
	Applies func(Signals) bool
	Extract func(Signals) string
}

// IdentityChain is evaluated in order; the first rule that applies and yields a
// non-empty identity wins.
var IdentityChain = []IdentityRule{
	{
		Name:    "user-header",
		Applies: func(s Signals) bool { return s.User != "" },
		Extract: func(s Signals) string { return s.User },
	},
	{
		Name:    "token-username",
		Applies: func(s Signals) bool { return s.Token != "" },
		Extract: func(s Signals) string { return tokenUsername(s.Token) },
	},
}

// ResolveActor derives the actor identity for a record. It never fails: when no
// rule produces a value the NotFound sentinel is returned.
func ResolveActor(s Signals) string {
	for _, rule := range IdentityChain {
		if !rule.Applies(s) {
			continue
		}
		if id := rule.Extract(s); id != "" {
			return id
		}
	}
	return NotFound
}

// tokenUsername returns the part of a "username:secret" token before the first
// colon. The secret half is discarded here and must not travel any further.
func tokenUsername(token string) string {
	name, _, _ := strings.Cut(token, ":")
	return name
}
