// Package model defines the Pub/Sub data model of spec §3: nodes,
// affiliations, subscriptions, items, and subscription options. It mirrors
// the plain-struct-plus-constants style the teacher uses for its own
// storage-layer models (no behavior beyond small helpers; the controller
// and broadcaster packages operate on these).
package model

import "time"

// Affiliation is an entity's standing on a node.
type Affiliation string

const (
	AffiliationOwner     Affiliation = "owner"
	AffiliationPublisher Affiliation = "publisher"
	AffiliationMember    Affiliation = "member"
	AffiliationOutcast   Affiliation = "outcast"
	AffiliationNone      Affiliation = "none"
)

// SubState is a subscription's lifecycle state.
type SubState string

const (
	SubSubscribed   SubState = "subscribed"
	SubPending      SubState = "pending"
	SubUnconfigured SubState = "unconfigured"
)

// AccessModel gates who may subscribe, spec §4.6.
type AccessModel string

const (
	AccessOpen      AccessModel = "open"
	AccessPresence  AccessModel = "presence"
	AccessRoster    AccessModel = "roster"
	AccessAuthorize AccessModel = "authorize"
	AccessWhitelist AccessModel = "whitelist"
)

// PublishModel restricts who may publish, spec §6.
type PublishModel string

const (
	PublishPublishers  PublishModel = "publishers"
	PublishSubscribers PublishModel = "subscribers"
	PublishOpen        PublishModel = "open"
)

// SendLastPublishedItem controls last-item delivery on subscribe/presence.
type SendLastPublishedItem string

const (
	SendLastNever              SendLastPublishedItem = "never"
	SendLastOnSub              SendLastPublishedItem = "on_sub"
	SendLastOnSubAndPresence   SendLastPublishedItem = "on_sub_and_presence"
)

// Node is a Pub/Sub node, spec §3 "Pub/Sub Node." Host is a plain domain for
// regular pub/sub or a bare JID for PEP.
type Node struct {
	NodeIdx int64
	Host    string
	Path    string
	Type    string // plugin name: "flat", "pep", "hometree", ...
	Parent  string // empty for a root node
	Owners  []string
	Options Options
}

// StateRecord is the per-(entity, node) affiliation + subscription record,
// spec §3 "State record."
type StateRecord struct {
	NodeIdx     int64
	Entity      string
	Affiliation Affiliation
	Subs        []Subscription
}

// Subscription is one (state, subid) pair for an entity on a node.
type Subscription struct {
	SubID   string
	JID     string
	State   SubState
	Options SubOptions
}

// SubOptions is a subscription's per-subid delivery configuration, spec §3
// "Subscription options."
type SubOptions struct {
	Deliver           bool
	SubscriptionDepth int       // -1 means "all"
	SubscriptionType  string    // "items" or "nodes"
	ShowValues        []string
	Expire            time.Time
}

// DefaultSubOptions returns the XEP-0060 defaults: deliver=true, depth=1,
// type=items, no show-value filter, no expiry.
func DefaultSubOptions() SubOptions {
	return SubOptions{
		Deliver:           true,
		SubscriptionDepth: 1,
		SubscriptionType:  "items",
	}
}

// Item is a single published item, spec §3 "Item."
type Item struct {
	ItemID       string
	NodeIdx      int64
	Payload      []byte // a serialized XML fragment list
	CreatedAt    time.Time
	CreatedBy    string
	ModifiedAt   time.Time
	ModifiedBy   string
}
