package pubsub

import "github.com/xmppfed/fedcore/pubsub/model"

// RosterChecker answers the presence/roster questions the access-model gate
// needs; it stands in for the out-of-scope roster/presence subsystem
// (spec §1 "external collaborators"), the same way router.Router stands in
// for stanza delivery.
type RosterChecker interface {
	// HasPresenceSubscription reports whether owner has granted requester
	// a presence subscription ("from" or "both").
	HasPresenceSubscription(owner, requester string) bool

	// InRosterGroup reports whether requester is in one of groups on
	// owner's roster entry for requester.
	InRosterGroup(owner, requester string, groups []string) bool
}

// SubscribeOutcome is the result of gating a subscribe attempt, spec §4.6.
type SubscribeOutcome int

const (
	OutcomeSubscribed SubscribeOutcome = iota
	OutcomePending
	OutcomeRefused
)

// Gate evaluates node's access model for a subscribe attempt by requester,
// spec §4.6. whitelisted reports whether an owner has already placed
// requester's bare JID on the node's affiliation list with a non-outcast
// affiliation (the controller resolves this from the node's state records
// before calling Gate, since that's plain node-tree lookup, not a
// roster/presence question).
func Gate(node *model.Node, requester string, whitelisted bool, rc RosterChecker) SubscribeOutcome {
	switch node.Options.AccessModel {
	case model.AccessOpen:
		return OutcomeSubscribed
	case model.AccessPresence:
		for _, owner := range node.Owners {
			if rc.HasPresenceSubscription(owner, requester) {
				return OutcomeSubscribed
			}
		}
		return OutcomeRefused
	case model.AccessRoster:
		for _, owner := range node.Owners {
			if rc.HasPresenceSubscription(owner, requester) &&
				rc.InRosterGroup(owner, requester, node.Options.RosterGroupsAllowed) {
				return OutcomeSubscribed
			}
		}
		return OutcomeRefused
	case model.AccessAuthorize:
		return OutcomePending
	case model.AccessWhitelist:
		if whitelisted {
			return OutcomeSubscribed
		}
		return OutcomeRefused
	default:
		return OutcomeRefused
	}
}
