// Package hook defines the narrow notification interfaces this tree raises
// into the surrounding process, standing in for the hook/event bus that
// spec §1 calls out as an out-of-scope external collaborator. Only the
// interfaces the Pub/Sub and S2S packages actually call are defined here;
// the bus implementation itself belongs to the process that wires
// everything together.
package hook

import "github.com/xmppfed/fedcore/xmpp/jid"

// PresenceObserver is notified of presence transitions so the Pub/Sub PEP
// plugin can implement send_last_published_item=on_sub_and_presence (spec
// §8 scenario 5) and purge_offline (spec §8 scenario 6).
type PresenceObserver interface {
	// ResourceAvailable is called when a bare JID's resource transitions
	// to available, carrying its <show/> state.
	ResourceAvailable(user *jid.JID, showState int)

	// ResourceUnavailable is called when a resource goes offline. last
	// reports whether this was the user's last available resource.
	ResourceUnavailable(user *jid.JID, last bool)
}

// NopPresenceObserver implements PresenceObserver with no-ops, used when a
// process doesn't wire presence-driven PEP behavior.
type NopPresenceObserver struct{}

func (NopPresenceObserver) ResourceAvailable(*jid.JID, int)    {}
func (NopPresenceObserver) ResourceUnavailable(*jid.JID, bool) {}
