package session

import (
	"fmt"
	"strings"
)

// BindingPolicy controls whether additional channels are bound to a session
// and what happens when the session cannot have them.
type BindingPolicy int

const (
	// BindingDisabled never binds additional channels.
	BindingDisabled BindingPolicy = iota
	// BindingPreferred binds channels when possible and otherwise stays single-channel.
	BindingPreferred
	// BindingRequired fails channel establishment when the session cannot have additional channels.
	BindingRequired
)

func (p BindingPolicy) String() string {
	switch p {
	case BindingDisabled:
		return "disabled"
	case BindingPreferred:
		return "preferred"
	case BindingRequired:
		return "required"
	default:
		return fmt.Sprintf("UnknownBindingPolicy(%d)", int(p))
	}
}

func ParseBindingPolicy(s string) (BindingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled":
		return BindingDisabled, nil
	case "preferred":
		return BindingPreferred, nil
	case "required":
		return BindingRequired, nil
	default:
		return 0, fmt.Errorf("unknown binding policy %q", s)
	}
}

func (p BindingPolicy) MarshalText() ([]byte, error) {
	if p < BindingDisabled || p > BindingRequired {
		return nil, fmt.Errorf("unknown binding policy %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *BindingPolicy) UnmarshalText(b []byte) error {
	v, err := ParseBindingPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
