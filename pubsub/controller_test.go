package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmppfed/fedcore/config"
	fcerrors "github.com/xmppfed/fedcore/errors"
	"github.com/xmppfed/fedcore/pubsub/model"
	"github.com/xmppfed/fedcore/router"
	"github.com/xmppfed/fedcore/storage/memory"
	"github.com/xmppfed/fedcore/xmpp"
)

func testPayload() []xmpp.XElement {
	entry := xmpp.NewElementName("entry")
	entry.SetText("hello")
	return []xmpp.XElement{entry}
}

func testController(t *testing.T) (*Controller, *memory.Repository) {
	repo := memory.New()
	cfg := config.DefaultPubSub()
	ctrl := NewController(repo, router.Discard, nil, newFakeRosterChecker(), cfg)
	return ctrl, repo
}

// TestCreateNodeThenGetNode covers spec §4.5 create_node: the owner gets an
// owner affiliation and the node is fetchable by its assigned path.
func TestCreateNodeThenGetNode(t *testing.T) {
	ctrl, repo := testController(t)
	ctx := context.Background()

	path, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", "", nil)
	require.NoError(t, err)
	require.Equal(t, "news", path)

	node, err := repo.GetNode(ctx, "pubsub.example.com", "news")
	require.NoError(t, err)
	require.Equal(t, []string{"owner@example.com"}, node.Owners)

	st, err := repo.GetState(ctx, node.NodeIdx, "owner@example.com")
	require.NoError(t, err)
	require.Equal(t, model.AffiliationOwner, st.Affiliation)
}

// TestCreateNodeInstantPath covers instant-node creation (empty path) for a
// plugin that supports it.
func TestCreateNodeInstantPath(t *testing.T) {
	ctrl, _ := testController(t)
	ctx := context.Background()

	path, err := ctrl.CreateNode(ctx, "pubsub.example.com", "", "owner@example.com", "flat", "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, path)
}

// TestCreateNodeDuplicatePathFails covers spec §4.5's node-already-exists
// rejection.
func TestCreateNodeDuplicatePathFails(t *testing.T) {
	ctrl, _ := testController(t)
	ctx := context.Background()

	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", "", nil)
	require.NoError(t, err)

	_, err = ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", "", nil)
	require.ErrorIs(t, err, fcerrors.ErrNodeAlreadyExists)
}

// TestPublishItemAutoCreatesPEPNode covers spec §8's PEP auto-create
// scenario: publishing to an unknown node under a bare-JID host creates it.
func TestPublishItemAutoCreatesPEPNode(t *testing.T) {
	ctrl, repo := testController(t)
	ctx := context.Background()

	itemID, evicted, err := ctrl.PublishItem(ctx, "user@example.com", "urn:xmpp:mood", "user@example.com", "", testPayload())
	require.NoError(t, err)
	require.NotEmpty(t, itemID)
	require.Empty(t, evicted)

	node, err := repo.GetNode(ctx, "user@example.com", "urn:xmpp:mood")
	require.NoError(t, err)
	require.Equal(t, "pep", node.Type)
}

// TestPublishItemEvictsOldestOverMaxItems covers the bounded-retention
// eviction policy, spec §4.5 "publish_item... evicts the oldest item when
// over max_items."
func TestPublishItemEvictsOldestOverMaxItems(t *testing.T) {
	ctrl, _ := testController(t)
	ctx := context.Background()

	form := testForm(formField("max_items", "2"))
	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", "", form)
	require.NoError(t, err)

	id1, _, err := ctrl.PublishItem(ctx, "pubsub.example.com", "news", "owner@example.com", "one", testPayload())
	require.NoError(t, err)
	_, _, err = ctrl.PublishItem(ctx, "pubsub.example.com", "news", "owner@example.com", "two", testPayload())
	require.NoError(t, err)
	_, evicted, err := ctrl.PublishItem(ctx, "pubsub.example.com", "news", "owner@example.com", "three", testPayload())
	require.NoError(t, err)
	require.Equal(t, []string{id1}, evicted)
}

// TestPublishItemForbiddenForNonPublisher covers the publishers-only
// publish_model default: an entity with no affiliation may not publish.
func TestPublishItemForbiddenForNonPublisher(t *testing.T) {
	ctrl, _ := testController(t)
	ctx := context.Background()

	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", "", nil)
	require.NoError(t, err)

	_, _, err = ctrl.PublishItem(ctx, "pubsub.example.com", "news", "stranger@example.com", "", nil)
	require.Error(t, err)
	require.IsType(t, ErrForbidden{}, err)
}

// TestPublishItemRejectsOversizedPayload covers the max_payload_size
// not-acceptable error path.
func TestPublishItemRejectsOversizedPayload(t *testing.T) {
	ctrl, _ := testController(t)
	ctx := context.Background()

	form := testForm(formField("max_payload_size", "5"))
	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", "", form)
	require.NoError(t, err)

	big := xmpp.NewElementName("entry")
	big.SetText("far too long a payload to fit")

	_, _, err = ctrl.PublishItem(ctx, "pubsub.example.com", "news", "owner@example.com", "", []xmpp.XElement{big})
	require.Error(t, err)
	var nae *ErrNotAcceptable
	require.ErrorAs(t, err, &nae)
	require.Equal(t, "max_payload_size", nae.Field)
}

// TestSubscribeNodeOpenAccessSubscribesImmediately covers subscribe_node on
// an open-access node, spec §4.5/§4.6.
func TestSubscribeNodeOpenAccessSubscribesImmediately(t *testing.T) {
	ctrl, _ := testController(t)
	ctx := context.Background()

	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", model.AccessOpen, nil)
	require.NoError(t, err)

	state, subID, err := ctrl.SubscribeNode(ctx, "pubsub.example.com", "news", "bob@example.com", "bob@example.com", nil)
	require.NoError(t, err)
	require.Equal(t, model.SubSubscribed, state)
	require.NotEmpty(t, subID)
}

// TestSubscribeNodeWhitelistRefusesUnlisted covers the whitelist access
// model's refusal path surfaced as ErrForbidden.
func TestSubscribeNodeWhitelistRefusesUnlisted(t *testing.T) {
	ctrl, _ := testController(t)
	ctx := context.Background()

	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", model.AccessWhitelist, nil)
	require.NoError(t, err)

	_, _, err = ctrl.SubscribeNode(ctx, "pubsub.example.com", "news", "bob@example.com", "bob@example.com", nil)
	require.Error(t, err)
	require.IsType(t, ErrForbidden{}, err)
}

// TestRetractItemRemovesItem covers spec §4.5 retract_item.
func TestRetractItemRemovesItem(t *testing.T) {
	ctrl, repo := testController(t)
	ctx := context.Background()

	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", "", nil)
	require.NoError(t, err)
	_, _, err = ctrl.PublishItem(ctx, "pubsub.example.com", "news", "owner@example.com", "item1", testPayload())
	require.NoError(t, err)

	err = ctrl.RetractItem(ctx, "pubsub.example.com", "news", "owner@example.com", "item1", false)
	require.NoError(t, err)

	node, err := repo.GetNode(ctx, "pubsub.example.com", "news")
	require.NoError(t, err)
	_, err = repo.GetItem(ctx, node.NodeIdx, "item1")
	require.ErrorIs(t, err, fcerrors.ErrItemNotFound)
}

// TestPurgeNodeRequiresOwner covers spec §4.5 purge_node's owner-only gate.
func TestPurgeNodeRequiresOwner(t *testing.T) {
	ctrl, _ := testController(t)
	ctx := context.Background()

	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", "", nil)
	require.NoError(t, err)

	err = ctrl.PurgeNode(ctx, "pubsub.example.com", "news", "stranger@example.com")
	require.Error(t, err)
	require.IsType(t, ErrForbidden{}, err)

	err = ctrl.PurgeNode(ctx, "pubsub.example.com", "news", "owner@example.com")
	require.NoError(t, err)
}

// TestDeleteNodeCascadesToChildren covers spec §4.5 delete_node's recursive
// deletion of a node's collection subtree.
func TestDeleteNodeCascadesToChildren(t *testing.T) {
	ctrl, repo := testController(t)
	ctx := context.Background()

	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "parent", "owner@example.com", "hometree", "", nil)
	require.NoError(t, err)
	childForm := testForm(formField("collection", "parent"))
	_, err = ctrl.CreateNode(ctx, "pubsub.example.com", "parent/child", "owner@example.com", "hometree", "", childForm)
	require.NoError(t, err)

	err = ctrl.DeleteNode(ctx, "pubsub.example.com", "parent", "owner@example.com")
	require.NoError(t, err)

	_, err = repo.GetNode(ctx, "pubsub.example.com", "parent")
	require.ErrorIs(t, err, fcerrors.ErrNodeNotFound)
	_, err = repo.GetNode(ctx, "pubsub.example.com", "parent/child")
	require.ErrorIs(t, err, fcerrors.ErrNodeNotFound)
}

// TestSetAffiliationRefusesRemovingLastOwner covers spec §4.5's guard
// against leaving a node ownerless.
func TestSetAffiliationRefusesRemovingLastOwner(t *testing.T) {
	ctrl, _ := testController(t)
	ctx := context.Background()

	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", "", nil)
	require.NoError(t, err)

	err = ctrl.SetAffiliation(ctx, "pubsub.example.com", "news", "owner@example.com", "owner@example.com", model.AffiliationNone)
	require.Error(t, err)
	require.IsType(t, ErrNotAllowed{}, err)
}

// TestGetItemsReturnsNewestFirst covers get_items' ordering contract.
func TestGetItemsReturnsNewestFirst(t *testing.T) {
	ctrl, _ := testController(t)
	ctx := context.Background()

	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", "", nil)
	require.NoError(t, err)
	_, _, err = ctrl.PublishItem(ctx, "pubsub.example.com", "news", "owner@example.com", "first", testPayload())
	require.NoError(t, err)
	_, _, err = ctrl.PublishItem(ctx, "pubsub.example.com", "news", "owner@example.com", "second", testPayload())
	require.NoError(t, err)

	items, err := ctrl.GetItems(ctx, "pubsub.example.com", "news", "owner@example.com", 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "second", items[0].ItemID)
	require.Equal(t, "first", items[1].ItemID)
}

// TestConfigureNodeAppliesSubmittedForm covers spec §4.5 configure_node.
func TestConfigureNodeAppliesSubmittedForm(t *testing.T) {
	ctrl, repo := testController(t)
	ctx := context.Background()

	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", "", nil)
	require.NoError(t, err)

	form := testForm(formField("notification_type", "normal"))
	err = ctrl.ConfigureNode(ctx, "pubsub.example.com", "news", "owner@example.com", form)
	require.NoError(t, err)

	node, err := repo.GetNode(ctx, "pubsub.example.com", "news")
	require.NoError(t, err)
	require.Equal(t, "normal", node.Options.NotificationType)
}

// TestSetSubscriptionsCommitsEntriesBeforeAFailure covers the Open Question
// 1 decision (DESIGN.md): set_subscriptions is non-atomic across entries, so
// a later entry's failure still leaves earlier entries committed.
func TestSetSubscriptionsCommitsEntriesBeforeAFailure(t *testing.T) {
	ctrl, repo := testController(t)
	ctx := context.Background()

	_, err := ctrl.CreateNode(ctx, "pubsub.example.com", "news", "owner@example.com", "flat", model.AccessOpen, nil)
	require.NoError(t, err)
	_, subID, err := ctrl.SubscribeNode(ctx, "pubsub.example.com", "news", "bob@example.com", "bob@example.com", nil)
	require.NoError(t, err)

	err = ctrl.SetSubscriptions(ctx, "pubsub.example.com", "news", "owner@example.com", []SubscriptionEntry{
		{Target: "bob@example.com", SubID: subID, State: model.SubPending},
		{Target: "nobody@example.com", SubID: "does-not-exist", State: model.SubSubscribed},
	})
	require.Error(t, err)
	var nae *ErrNotAcceptable
	require.ErrorAs(t, err, &nae)

	node, err := repo.GetNode(ctx, "pubsub.example.com", "news")
	require.NoError(t, err)
	st, err := repo.GetState(ctx, node.NodeIdx, "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, model.SubPending, st.Subs[0].State)
}
