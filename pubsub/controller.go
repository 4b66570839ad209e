// Package pubsub implements the Pub/Sub core of spec §4.5/§4.6/§4.7: the
// controller (protocol verbs), the access-model gate, and the broadcaster.
package pubsub

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xmppfed/fedcore/config"
	fcerrors "github.com/xmppfed/fedcore/errors"
	"github.com/xmppfed/fedcore/pubsub/model"
	"github.com/xmppfed/fedcore/router"
	"github.com/xmppfed/fedcore/storage"
	"github.com/xmppfed/fedcore/xmpp"
)

// Controller implements every pubsub protocol verb of spec §4.5, performing
// permission checks, a storage transaction, and (on success) a broadcast.
type Controller struct {
	repo    storage.Repository
	bcast   *Broadcaster
	rc      RosterChecker
	cfg     config.PubSub
	plugins map[string]Plugin
}

// NewController wires a Controller from its collaborators; plugins is the
// configured set (spec §6 "plugins"), looked up by PluginFor.
func NewController(repo storage.Repository, rtr router.Router, presIdx PresenceIndex, rc RosterChecker, cfg config.PubSub) *Controller {
	plugins := map[string]Plugin{}
	for _, name := range cfg.Plugins {
		if p, ok := PluginFor(name); ok {
			plugins[name] = p
		}
	}
	return &Controller{
		repo:    repo,
		bcast:   NewBroadcaster(repo, rtr, presIdx),
		rc:      rc,
		cfg:     cfg,
		plugins: plugins,
	}
}

func (c *Controller) plugin(name string) (Plugin, error) {
	p, ok := c.plugins[name]
	if !ok {
		return nil, fcerrors.New("pubsub: unknown node type " + name)
	}
	return p, nil
}

// CreateNode implements spec §4.5 create_node. An empty path requires the
// plugin's instant-nodes feature and generates a random one.
func (c *Controller) CreateNode(ctx context.Context, host, path, owner, nodeType string, access model.AccessModel, form xmpp.XElement) (string, error) {
	p, err := c.plugin(nodeType)
	if err != nil {
		return "", err
	}
	if path == "" {
		if !p.Supports("instant-nodes") {
			return "", ErrFeatureNotImplemented{Feature: "instant-nodes"}
		}
		path = uuid.New().String()
	}

	defaults := p.DefaultOptions(model.DefaultOptions(c.cfg.MaxItemsNode))
	if access != "" {
		defaults.AccessModel = access
	}
	opts, err := ParseConfigForm(form, defaults)
	if err != nil {
		return "", err
	}

	var parent *model.Node
	if len(opts.Collection) > 0 {
		parent, err = c.repo.GetNode(ctx, host, opts.Collection[0])
		if err != nil {
			return "", fcerrors.ErrParentNodeNotFound
		}
		if !c.createPermission(ctx, parent, owner, access) {
			return "", ErrForbidden{}
		}
	}

	err = c.repo.Transact(ctx, func(ctx context.Context) error {
		if _, err := c.repo.GetNode(ctx, host, path); err == nil {
			return fcerrors.ErrNodeAlreadyExists
		}
		idx, err := c.repo.NextNodeIdx(ctx)
		if err != nil {
			return err
		}
		node := &model.Node{
			NodeIdx: idx,
			Host:    host,
			Path:    path,
			Type:    nodeType,
			Owners:  []string{owner},
			Options: opts,
		}
		if parent != nil {
			node.Parent = parent.Path
		}
		if err := c.repo.PutNode(ctx, node); err != nil {
			return err
		}
		return c.repo.PutState(ctx, &model.StateRecord{
			NodeIdx:     idx,
			Entity:      owner,
			Affiliation: model.AffiliationOwner,
		})
	})
	if err != nil {
		return "", err
	}

	if node, gerr := c.repo.GetNode(ctx, host, path); gerr == nil {
		_ = c.bcast.Broadcast(ctx, node, EventCreate, "", nil)
	}
	return path, nil
}

// createPermission reports whether owner may create a child of parent,
// spec §4.5 "check create_node_permission(parent, owner, access)."
func (c *Controller) createPermission(ctx context.Context, parent *model.Node, owner string, access model.AccessModel) bool {
	for _, o := range parent.Owners {
		if o == owner {
			return true
		}
	}
	return parent.Options.AccessModel == model.AccessOpen
}

// SubscribeNode implements spec §4.5 subscribe_node.
func (c *Controller) SubscribeNode(ctx context.Context, host, path, requester, subscriber string, form xmpp.XElement) (model.SubState, string, error) {
	node, err := c.repo.GetNode(ctx, host, path)
	if err != nil {
		return "", "", err
	}
	p, err := c.plugin(node.Type)
	if err != nil {
		return "", "", err
	}
	if !p.Supports("subscribe") || !node.Options.Subscribe {
		return "", "", ErrFeatureNotImplemented{Feature: "subscribe"}
	}
	if form != nil && !p.Supports("subscription-options") {
		return "", "", ErrFeatureNotImplemented{Feature: "subscription-options"}
	}

	whitelisted := false
	if st, _ := c.repo.GetState(ctx, node.NodeIdx, subscriber); st != nil {
		whitelisted = st.Affiliation != model.AffiliationNone && st.Affiliation != model.AffiliationOutcast
	}
	outcome := Gate(node, requester, whitelisted, c.rc)
	if outcome == OutcomeRefused {
		return "", "", ErrForbidden{}
	}

	subOpts := model.DefaultSubOptions()
	if form != nil {
		parsed, err := parseSubOptionsForm(form, subOpts)
		if err != nil {
			return "", "", err
		}
		subOpts = parsed
	}
	subID := uuid.New().String()
	state := model.SubPending
	if outcome == OutcomeSubscribed {
		state = model.SubSubscribed
	}

	err = c.repo.Transact(ctx, func(ctx context.Context) error {
		rec, err := c.repo.GetState(ctx, node.NodeIdx, subscriber)
		if err != nil {
			rec = &model.StateRecord{NodeIdx: node.NodeIdx, Entity: subscriber, Affiliation: model.AffiliationNone}
		}
		rec.Subs = append(rec.Subs, model.Subscription{SubID: subID, JID: subscriber, State: state, Options: subOpts})
		return c.repo.PutState(ctx, rec)
	})
	if err != nil {
		return "", "", err
	}

	if state == model.SubSubscribed {
		c.maybeSendLastItem(ctx, node, subscriber)
	}
	return state, subID, nil
}

func parseSubOptionsForm(form xmpp.XElement, defaults model.SubOptions) (model.SubOptions, error) {
	out := defaults
	vals := collectFields(form)
	if v, ok := vals["deliver"]; ok {
		out.Deliver = parseBool(v)
	}
	if v, ok := vals["subscription_depth"]; ok {
		if single(v) == "all" {
			out.SubscriptionDepth = -1
		}
	}
	if v, ok := vals["show_values"]; ok {
		out.ShowValues = v
	}
	return out, nil
}

// maybeSendLastItem implements the send-last-published-item policy on
// subscribe, spec §4.5 "On subscribed with send-last policy, pushes the
// last item... to the new subscriber."
func (c *Controller) maybeSendLastItem(ctx context.Context, node *model.Node, subscriber string) {
	if node.Options.SendLastPublishedItem == model.SendLastNever || node.Options.SendLastPublishedItem == "" {
		return
	}
	items, err := c.repo.GetItems(ctx, node.NodeIdx, 1)
	if err != nil || len(items) == 0 {
		return
	}
	last := items[0]
	msg := c.bcast.buildNotification(node, EventPublish, last.ItemID, parsePayload(last.Payload), recipient{jid: subscriber})
	_ = c.bcast.rtr.Route(msg)
}

// PublishItem implements spec §4.5 publish_item.
func (c *Controller) PublishItem(ctx context.Context, host, path, publisher, itemID string, payload []xmpp.XElement) (string, []string, error) {
	node, err := c.repo.GetNode(ctx, host, path)
	if err != nil {
		p, perr := c.plugin(defaultTypeFor(host))
		if perr != nil || !p.Supports("auto-create") {
			return "", nil, fcerrors.ErrNodeNotFound
		}
		if _, cerr := c.CreateNode(ctx, host, path, publisher, p.Name(), "", nil); cerr != nil {
			return "", nil, cerr
		}
		node, err = c.repo.GetNode(ctx, host, path)
		if err != nil {
			return "", nil, err
		}
	}
	p, err := c.plugin(node.Type)
	if err != nil {
		return "", nil, err
	}
	if !p.Supports("publish") {
		return "", nil, ErrFeatureNotImplemented{Feature: "publish"}
	}
	if !c.publishPermission(ctx, node, publisher) {
		return "", nil, ErrForbidden{}
	}
	if node.Options.MaxPayloadSize > 0 && payloadSize(payload) > node.Options.MaxPayloadSize {
		return "", nil, notAcceptable("max_payload_size")
	}
	wantPayload := node.Options.DeliverPayloads || node.Options.PersistItems
	if wantPayload != (len(payload) > 0) {
		return "", nil, notAcceptable("payload")
	}

	if itemID == "" {
		itemID = uuid.New().String()
	}

	var evicted []string
	err = c.repo.Transact(ctx, func(ctx context.Context) error {
		now := time.Now()
		item := &model.Item{
			NodeIdx:    node.NodeIdx,
			ItemID:     itemID,
			CreatedBy:  publisher,
			ModifiedBy: publisher,
			CreatedAt:  now,
			ModifiedAt: now,
			Payload:    serializePayload(payload),
		}
		if err := c.repo.PutItem(ctx, item); err != nil {
			return err
		}
		max := node.Options.MaxItems
		if max <= 0 {
			return nil
		}
		for {
			n, err := c.repo.ItemCount(ctx, node.NodeIdx)
			if err != nil || n <= max {
				return err
			}
			oldest, ok, err := c.repo.OldestItemID(ctx, node.NodeIdx)
			if err != nil || !ok {
				return err
			}
			if err := c.repo.DeleteItem(ctx, node.NodeIdx, oldest); err != nil {
				return err
			}
			evicted = append(evicted, oldest)
		}
	})
	if err != nil {
		return "", nil, err
	}

	_ = c.bcast.Broadcast(ctx, node, EventPublish, itemID, payload)
	for _, id := range evicted {
		_ = c.bcast.Broadcast(ctx, node, EventRetract, id, nil)
	}
	return itemID, evicted, nil
}

func (c *Controller) publishPermission(ctx context.Context, node *model.Node, publisher string) bool {
	st, _ := c.repo.GetState(ctx, node.NodeIdx, publisher)
	switch node.Options.PublishModel {
	case model.PublishOpen:
		return true
	case model.PublishSubscribers:
		if st != nil {
			for _, s := range st.Subs {
				if s.State == model.SubSubscribed {
					return true
				}
			}
		}
		fallthrough
	default: // publishers
		if st == nil {
			return false
		}
		return st.Affiliation == model.AffiliationOwner || st.Affiliation == model.AffiliationPublisher
	}
}

func payloadSize(payload []xmpp.XElement) int {
	n := 0
	for _, el := range payload {
		n += len(el.String())
	}
	return n
}

func defaultTypeFor(host string) string {
	if isPEPHost(host) {
		return "pep"
	}
	return "flat"
}

// RetractItem implements spec §4.5 retract_item.
func (c *Controller) RetractItem(ctx context.Context, host, path, publisher, itemID string, forceNotify bool) error {
	node, err := c.repo.GetNode(ctx, host, path)
	if err != nil {
		return err
	}
	p, err := c.plugin(node.Type)
	if err != nil {
		return err
	}
	if !p.Supports("persistent-items") || !p.Supports("delete-items") {
		return ErrFeatureNotImplemented{Feature: "delete-items"}
	}
	if !c.publishPermission(ctx, node, publisher) {
		return ErrForbidden{}
	}
	if err := c.repo.Transact(ctx, func(ctx context.Context) error {
		return c.repo.DeleteItem(ctx, node.NodeIdx, itemID)
	}); err != nil {
		return err
	}
	if node.Options.NotifyRetract || forceNotify {
		_ = c.bcast.Broadcast(ctx, node, EventRetract, itemID, nil)
	}
	return nil
}

// PurgeNode implements spec §4.5 purge_node: deletes every item, keeping
// the node itself.
func (c *Controller) PurgeNode(ctx context.Context, host, path, requester string) error {
	node, err := c.repo.GetNode(ctx, host, path)
	if err != nil {
		return err
	}
	if err := c.requireOwner(ctx, node, requester); err != nil {
		return err
	}
	p, err := c.plugin(node.Type)
	if err != nil {
		return err
	}
	if !p.Supports("purge-nodes") {
		return ErrFeatureNotImplemented{Feature: "purge-nodes"}
	}
	err = c.repo.Transact(ctx, func(ctx context.Context) error {
		items, err := c.repo.GetItems(ctx, node.NodeIdx, 0)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := c.repo.DeleteItem(ctx, node.NodeIdx, it.ItemID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	_ = c.bcast.Broadcast(ctx, node, EventPurge, "", nil)
	return nil
}

// DeleteNode implements spec §4.5 delete_node: cascades via the node tree.
func (c *Controller) DeleteNode(ctx context.Context, host, path, requester string) error {
	node, err := c.repo.GetNode(ctx, host, path)
	if err != nil {
		return err
	}
	if err := c.requireOwner(ctx, node, requester); err != nil {
		return err
	}
	p, err := c.plugin(node.Type)
	if err != nil {
		return err
	}
	if !p.Supports("delete-nodes") {
		return ErrFeatureNotImplemented{Feature: "delete-nodes"}
	}
	children, _ := c.repo.ChildNodes(ctx, host, path)
	for _, child := range children {
		if err := c.DeleteNode(ctx, host, child.Path, requester); err != nil {
			return err
		}
	}
	if node.Options.NotifyDelete {
		_ = c.bcast.Broadcast(ctx, node, EventDelete, "", nil)
	}
	return c.repo.Transact(ctx, func(ctx context.Context) error {
		return c.repo.DeleteNode(ctx, node.NodeIdx)
	})
}

func (c *Controller) requireOwner(ctx context.Context, node *model.Node, requester string) error {
	st, err := c.repo.GetState(ctx, node.NodeIdx, requester)
	if err != nil || st.Affiliation != model.AffiliationOwner {
		return ErrForbidden{}
	}
	return nil
}

// GetItems implements spec §4.5 get_items, honouring the access model.
func (c *Controller) GetItems(ctx context.Context, host, path, requester string, max int) ([]*model.Item, error) {
	node, err := c.repo.GetNode(ctx, host, path)
	if err != nil {
		return nil, err
	}
	whitelisted := false
	if st, _ := c.repo.GetState(ctx, node.NodeIdx, requester); st != nil {
		whitelisted = st.Affiliation != model.AffiliationNone && st.Affiliation != model.AffiliationOutcast
	}
	if Gate(node, requester, whitelisted, c.rc) == OutcomeRefused {
		return nil, ErrForbidden{}
	}
	limit := node.Options.MaxItems
	if max > 0 && (limit <= 0 || max < limit) {
		limit = max
	}
	return c.repo.GetItems(ctx, node.NodeIdx, limit)
}

// GetItem implements spec §4.5 get_item.
func (c *Controller) GetItem(ctx context.Context, host, path, requester, itemID string) (*model.Item, error) {
	node, err := c.repo.GetNode(ctx, host, path)
	if err != nil {
		return nil, err
	}
	whitelisted := false
	if st, _ := c.repo.GetState(ctx, node.NodeIdx, requester); st != nil {
		whitelisted = st.Affiliation != model.AffiliationNone && st.Affiliation != model.AffiliationOutcast
	}
	if Gate(node, requester, whitelisted, c.rc) == OutcomeRefused {
		return nil, ErrForbidden{}
	}
	return c.repo.GetItem(ctx, node.NodeIdx, itemID)
}

// SetAffiliation implements spec §4.5 "affiliations... set": owner-only.
func (c *Controller) SetAffiliation(ctx context.Context, host, path, requester, target string, aff model.Affiliation) error {
	node, err := c.repo.GetNode(ctx, host, path)
	if err != nil {
		return err
	}
	if err := c.requireOwner(ctx, node, requester); err != nil {
		return err
	}
	if aff == model.AffiliationNone {
		owners, _ := c.repo.ListStates(ctx, node.NodeIdx)
		ownerCount := 0
		for _, st := range owners {
			if st.Affiliation == model.AffiliationOwner {
				ownerCount++
			}
		}
		if ownerCount <= 1 {
			if st, _ := c.repo.GetState(ctx, node.NodeIdx, target); st != nil && st.Affiliation == model.AffiliationOwner {
				return ErrNotAllowed{}
			}
		}
	}
	return c.repo.Transact(ctx, func(ctx context.Context) error {
		rec, err := c.repo.GetState(ctx, node.NodeIdx, target)
		if err != nil {
			rec = &model.StateRecord{NodeIdx: node.NodeIdx, Entity: target}
		}
		rec.Affiliation = aff
		return c.repo.PutState(ctx, rec)
	})
}

// SetSubscription implements spec §4.5 "subscriptions... set": owner-only,
// routes a notification to the subject. Per Open Question resolution (see
// DESIGN.md), this updates one subid's state at a time rather than as a
// single atomic multi-entry transaction, matching the ambiguity in the
// distilled behavior rather than silently tightening it.
func (c *Controller) SetSubscription(ctx context.Context, host, path, requester, target, subID string, state model.SubState) error {
	node, err := c.repo.GetNode(ctx, host, path)
	if err != nil {
		return err
	}
	if err := c.requireOwner(ctx, node, requester); err != nil {
		return err
	}
	err = c.repo.Transact(ctx, func(ctx context.Context) error {
		rec, err := c.repo.GetState(ctx, node.NodeIdx, target)
		if err != nil {
			return fcerrors.ErrSubscriptionNotFound
		}
		found := false
		for i := range rec.Subs {
			if rec.Subs[i].SubID == subID {
				rec.Subs[i].State = state
				found = true
			}
		}
		if !found {
			return fcerrors.ErrSubscriptionNotFound
		}
		return c.repo.PutState(ctx, rec)
	})
	if err != nil {
		return err
	}
	if node.Options.NotifySub {
		msg := c.bcast.buildSubscriptionNotification(node, target, subID, state, c.cfg.CompatDialbackSubsriptionTypo)
		_ = c.bcast.rtr.Route(msg)
	}
	return nil
}

// SubscriptionEntry is one (target, subid, state) tuple submitted together
// in an owner's "modify subscriptions" form, spec §4.5 "subscriptions...
// set," §9 Open Question 1 ("the source's set_subscriptions path").
type SubscriptionEntry struct {
	Target string
	SubID  string
	State  model.SubState
}

// SetSubscriptions applies a batch of subscription-state changes from one
// owner management form. Per the Open Question 1 decision in DESIGN.md,
// this is deliberately non-atomic across entries: each entry runs in its
// own call to SetSubscription (and therefore its own storage transaction),
// in request order. The first entry that fails aborts the loop and the
// whole call returns not-acceptable, but every entry already applied
// remains committed — this reproduces the ambiguous distilled behavior
// rather than silently tightening it into an all-or-nothing batch.
func (c *Controller) SetSubscriptions(ctx context.Context, host, path, requester string, entries []SubscriptionEntry) error {
	for _, e := range entries {
		if err := c.SetSubscription(ctx, host, path, requester, e.Target, e.SubID, e.State); err != nil {
			return notAcceptable("subid:" + e.SubID)
		}
	}
	return nil
}

// ConfigureNode implements spec §4.5 configure_node: owner-only.
func (c *Controller) ConfigureNode(ctx context.Context, host, path, requester string, form xmpp.XElement) error {
	node, err := c.repo.GetNode(ctx, host, path)
	if err != nil {
		return err
	}
	if err := c.requireOwner(ctx, node, requester); err != nil {
		return err
	}
	opts, err := ParseConfigForm(form, node.Options)
	if err != nil {
		return err
	}
	node.Options = opts
	if err := c.repo.Transact(ctx, func(ctx context.Context) error {
		return c.repo.PutNode(ctx, node)
	}); err != nil {
		return err
	}
	if opts.NotifyConfig {
		_ = c.bcast.Broadcast(ctx, node, EventConfigure, "", nil)
	}
	return nil
}
