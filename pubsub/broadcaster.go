package pubsub

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xmppfed/fedcore/pubsub/model"
	"github.com/xmppfed/fedcore/router"
	"github.com/xmppfed/fedcore/storage"
	"github.com/xmppfed/fedcore/xmpp"
)

const (
	nsPubSub      = "http://jabber.org/protocol/pubsub"
	nsPubSubEvent = "http://jabber.org/protocol/pubsub#event"
	nsSHIM        = "http://jabber.org/protocol/shim"
	nsAddress     = "http://jabber.org/protocol/address"
)

// EventKind identifies the broadcast event shape, spec §4.7.
type EventKind int

const (
	EventPublish EventKind = iota
	EventRetract
	EventPurge
	EventDelete
	EventConfigure
	EventCreate
)

// PresenceIndex answers the per-resource presence questions the broadcast
// filter needs (spec §4.7 "show_values vs resource presence state" and
// §6 "presence_based_delivery"); it's the same kind of narrow external
// seam as RosterChecker, standing in for the out-of-scope presence table.
type PresenceIndex interface {
	// Resources returns every available full JID for bare, with its
	// current show-state ("online" for plain <presence/>, or the
	// <show/> value).
	Resources(bare string) []ResourcePresence
}

// ResourcePresence is one available resource's presence show-state.
type ResourcePresence struct {
	FullJID string
	Show    string // "online", "away", "chat", "dnd", "xa"
}

// Broadcaster computes recipients and delivers Pub/Sub event notifications,
// spec §4.7.
type Broadcaster struct {
	repo    storage.Repository
	rtr     router.Router
	presIdx PresenceIndex
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(repo storage.Repository, rtr router.Router, presIdx PresenceIndex) *Broadcaster {
	return &Broadcaster{repo: repo, rtr: rtr, presIdx: presIdx}
}

// recipient is one bare-JID target with every subid that matched, collected
// across the node's ancestor chain so a single notification can carry all
// of them (spec §4.7 "Deduplicate").
type recipient struct {
	jid    string
	subids []string
}

// Broadcast delivers kind for node, carrying payload (the item's content
// for publish, or nil for structural events), to every recipient computed
// by walking node's ancestor chain, spec §4.7.
func (b *Broadcaster) Broadcast(ctx context.Context, node *model.Node, kind EventKind, itemID string, payload []xmpp.XElement) error {
	recipients, err := b.computeRecipients(ctx, node, kind)
	if err != nil {
		return err
	}
	for _, r := range recipients {
		msg := b.buildNotification(node, kind, itemID, payload, r)
		if err := b.rtr.Route(msg); err != nil {
			return err
		}
	}
	return nil
}

// computeRecipients walks node and every ancestor collection, unioning
// subscribers whose subscription_type/depth/deliver/expire/presence filter
// all pass, spec §4.7.
func (b *Broadcaster) computeRecipients(ctx context.Context, node *model.Node, kind EventKind) ([]recipient, error) {
	byJID := map[string]map[string]bool{} // jid -> set of subids

	distance := 0
	cur := node
	for cur != nil {
		states, err := b.repo.ListStates(ctx, cur.NodeIdx)
		if err != nil {
			return nil, err
		}
		for _, st := range states {
			for _, sub := range st.Subs {
				if sub.State != model.SubSubscribed {
					continue
				}
				if !subscriptionMatchesKind(sub.Options.SubscriptionType, kind) {
					continue
				}
				if !sub.Options.Deliver {
					continue
				}
				if sub.Options.SubscriptionDepth >= 0 && sub.Options.SubscriptionDepth < distance {
					continue
				}
				if !sub.Options.Expire.IsZero() && sub.Options.Expire.Before(time.Now()) {
					continue
				}
				if !b.passesPresenceFilter(st.Entity, sub.Options.ShowValues) {
					continue
				}
				if byJID[st.Entity] == nil {
					byJID[st.Entity] = map[string]bool{}
				}
				byJID[st.Entity][sub.SubID] = true
			}
		}
		if cur.Parent == "" {
			break
		}
		parent, err := b.repo.GetNode(ctx, cur.Host, cur.Parent)
		if err != nil {
			break
		}
		cur = parent
		distance++
	}

	var out []recipient
	for jid, subids := range byJID {
		var ids []string
		for id := range subids {
			ids = append(ids, id)
		}
		out = append(out, recipient{jid: jid, subids: ids})
	}
	return out, nil
}

func subscriptionMatchesKind(subType string, kind EventKind) bool {
	structural := kind == EventPurge || kind == EventDelete || kind == EventCreate
	if structural {
		return subType == "nodes" || subType == ""
	}
	return subType == "items" || subType == ""
}

func (b *Broadcaster) passesPresenceFilter(entity string, showValues []string) bool {
	if len(showValues) == 0 || b.presIdx == nil {
		return true
	}
	for _, r := range b.presIdx.Resources(entity) {
		for _, want := range showValues {
			if r.Show == want {
				return true
			}
		}
	}
	return false
}

// buildNotification assembles the <message/> carrying the event, SHIM
// headers, and (for PEP) the replyto extended address, spec §4.7.
func (b *Broadcaster) buildNotification(node *model.Node, kind EventKind, itemID string, payload []xmpp.XElement, r recipient) *xmpp.Message {
	notifType := node.Options.NotificationType
	if notifType == "" {
		notifType = "headline"
	}
	m := xmpp.NewMessageType(uuid.New().String(), notifType)
	m.SetTo(r.jid)
	m.SetFrom(node.Host)

	event := xmpp.NewElementNamespace("event", nsPubSubEvent)
	switch kind {
	case EventPublish:
		items := xmpp.NewElementName("items")
		items.SetAttribute("node", node.Path)
		item := xmpp.NewElementName("item")
		item.SetAttribute("id", itemID)
		item.AppendElements(payload...)
		items.AppendElement(item)
		event.AppendElement(items)
	case EventRetract:
		items := xmpp.NewElementName("items")
		items.SetAttribute("node", node.Path)
		retract := xmpp.NewElementName("retract")
		retract.SetAttribute("id", itemID)
		items.AppendElement(retract)
		event.AppendElement(items)
	case EventPurge:
		purge := xmpp.NewElementName("purge")
		purge.SetAttribute("node", node.Path)
		event.AppendElement(purge)
	case EventDelete:
		del := xmpp.NewElementName("delete")
		del.SetAttribute("node", node.Path)
		event.AppendElement(del)
	case EventConfigure:
		cfgEl := xmpp.NewElementName("configuration")
		cfgEl.SetAttribute("node", node.Path)
		cfgEl.AppendElement(BuildConfigForm(node.Options))
		event.AppendElement(cfgEl)
	case EventCreate:
		create := xmpp.NewElementName("create")
		create.SetAttribute("node", node.Path)
		event.AppendElement(create)
	}
	m.AppendElement(event)

	if len(r.subids) > 0 {
		headers := xmpp.NewElementNamespace("headers", nsSHIM)
		for _, id := range r.subids {
			h := xmpp.NewElementName("header")
			h.SetAttribute("name", "SubId")
			h.SetText(id)
			headers.AppendElement(h)
		}
		if node.Parent != "" {
			h := xmpp.NewElementName("header")
			h.SetAttribute("name", "Collection")
			h.SetText(node.Parent)
			headers.AppendElement(h)
		}
		m.AppendElement(headers)
	}

	if isPEPHost(node.Host) {
		addresses := xmpp.NewElementNamespace("addresses", nsAddress)
		addr := xmpp.NewElementName("address")
		addr.SetAttribute("type", "replyto")
		addr.SetAttribute("jid", node.Host)
		addresses.AppendElement(addr)
		m.AppendElement(addresses)
	}

	return m
}

// buildSubscriptionNotification assembles the headline <message/> sent to a
// subscriber whose subscription state was changed by an owner, spec §4.5
// "subscriptions... set" / §6 "notify_sub". compatTypo additionally stamps
// the historically misspelled "subsription" attribute alongside the correct
// one, per the Open Question resolution in DESIGN.md.
func (b *Broadcaster) buildSubscriptionNotification(node *model.Node, target string, subID string, state model.SubState, compatTypo bool) *xmpp.Message {
	m := xmpp.NewMessageType(uuid.New().String(), "headline")
	m.SetTo(target)
	m.SetFrom(node.Host)

	pubsub := xmpp.NewElementNamespace("pubsub", nsPubSub)
	sub := xmpp.NewElementName("subscription")
	sub.SetAttribute("node", node.Path)
	sub.SetAttribute("jid", target)
	sub.SetAttribute("subid", subID)
	sub.SetAttribute("subscription", string(state))
	if compatTypo {
		sub.SetAttribute("subsription", string(state))
	}
	pubsub.AppendElement(sub)
	m.AppendElement(pubsub)
	return m
}

// isPEPHost reports whether host is a bare JID (contains "@") rather than a
// plain domain, spec §3 "Host field may be a domain... or a bare JID."
func isPEPHost(host string) bool {
	for _, c := range host {
		if c == '@' {
			return true
		}
	}
	return false
}
