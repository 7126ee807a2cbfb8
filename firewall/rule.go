package firewall

import "fmt"

// Action is the action a firewall rule applies to matching traffic. The
// values match NET_FW_ACTION so backends can pass them through untouched.
type Action int32

const (
	ActionBlock Action = 0
	ActionAllow Action = 1
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionBlock:
		return "block"
	default:
		return fmt.Sprintf("action(%d)", int32(a))
	}
}

// Direction is the traffic direction of a rule, matching NET_FW_RULE_DIRECTION.
type Direction int32

const (
	DirectionInbound  Direction = 1
	DirectionOutbound Direction = 2
)

func (d Direction) String() string {
	switch d {
	case DirectionInbound:
		return "inbound"
	case DirectionOutbound:
		return "outbound"
	default:
		return fmt.Sprintf("direction(%d)", int32(d))
	}
}

// Definition is the desired state of a rule registered by the authorizer.
type Definition struct {
	// Name is the rule identity and the key used to find a previous
	// registration of the same application.
	Name string

	// ApplicationPath is the absolute, platform native path of the
	// executable the rule applies to.
	ApplicationPath string

	Action    Action
	Direction Direction
	Enabled   bool
}

// InboundAllow returns the only rule shape this package ever registers.
func InboundAllow(name, path string) Definition {
	return Definition{
		Name:            name,
		ApplicationPath: path,
		Action:          ActionAllow,
		Direction:       DirectionInbound,
		Enabled:         true,
	}
}
