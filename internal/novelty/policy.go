// Package novelty decides which freshly parsed records are new or changed relative to history.
package novelty

import (
	"errors"
	"fmt"
	"strings"
)

// Policy selects the "new-ness" semantics applied to a source.
type Policy int

const (
	// PolicyIdentity accepts only identities absent from history. Edits are ignored.
	PolicyIdentity Policy = iota + 1
	// PolicyChange also re-accepts known identities whose title or description changed.
	PolicyChange
)

// ErrUnknownPolicy is returned for an unset or unrecognized policy.
var ErrUnknownPolicy = errors.New("unknown novelty policy")

// ParsePolicy maps a config string onto a Policy.
func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "identity":
		return PolicyIdentity, nil
	case "change":
		return PolicyChange, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, raw)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyIdentity:
		return "identity"
	case PolicyChange:
		return "change"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}
