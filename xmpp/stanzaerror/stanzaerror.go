// Package stanzaerror builds the <error/> child elements attached to
// error-type stanzas, covering the standard RFC 6120 conditions plus the
// PubSub extended conditions named in spec §7.
package stanzaerror

// Condition names, RFC 6120 §8.3.3.
const (
	BadRequest            = "bad-request"
	Conflict              = "conflict"
	FeatureNotImplemented = "feature-not-implemented"
	Forbidden             = "forbidden"
	ItemNotFound          = "item-not-found"
	InternalServerError   = "internal-server-error"
	NotAcceptable         = "not-acceptable"
	NotAllowed            = "not-allowed"
	RemoteServerNotFound  = "remote-server-not-found"
	RemoteServerTimeout   = "remote-server-timeout"
	ServiceUnavailable    = "service-unavailable"
)

// Type is the error @type attribute value, RFC 6120 §8.3.2.
type Type string

const (
	TypeAuth     Type = "auth"
	TypeCancel   Type = "cancel"
	TypeContinue Type = "continue"
	TypeModify   Type = "modify"
	TypeWait     Type = "wait"
)

// DefaultType returns the conventional error @type for a condition.
func DefaultType(condition string) Type {
	switch condition {
	case BadRequest, NotAcceptable, NotAllowed, FeatureNotImplemented:
		return TypeModify
	case RemoteServerTimeout:
		return TypeWait
	default:
		return TypeCancel
	}
}

// NSPubSubErrors is the PubSub extended-condition namespace
// (http://jabber.org/protocol/pubsub#errors).
const NSPubSubErrors = "http://jabber.org/protocol/pubsub#errors"

// PubSubCondition names a PubSub extended <error/> child, sent alongside one
// of the standard conditions above (e.g. forbidden + closed-node).
type PubSubCondition string

const (
	ClosedNode           PubSubCondition = "closed-node"
	ConfigurationRequired PubSubCondition = "configuration-required"
	InvalidJID           PubSubCondition = "invalid-jid"
	ItemForbidden        PubSubCondition = "item-forbidden"
	ItemRequired         PubSubCondition = "item-required"
	JIDRequired          PubSubCondition = "jid-required"
	NodeIDRequired       PubSubCondition = "nodeid-required"
	NotInRosterGroup     PubSubCondition = "not-in-roster-group"
	NotSubscribed        PubSubCondition = "not-subscribed"
	PayloadTooBig        PubSubCondition = "payload-too-big"
	PendingSubscription  PubSubCondition = "pending-subscription"
	TooManySubscriptions PubSubCondition = "too-many-subscriptions"
	Unsupported          PubSubCondition = "unsupported"
)
