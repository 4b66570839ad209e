package pubsub

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmppfed/fedcore/pubsub/model"
	"github.com/xmppfed/fedcore/router"
	"github.com/xmppfed/fedcore/storage/memory"
	"github.com/xmppfed/fedcore/xmpp"
)

type capturingRouter struct {
	mu     sync.Mutex
	routed []xmpp.XElement
}

func (r *capturingRouter) Route(stanza xmpp.XElement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routed = append(r.routed, stanza)
	return nil
}

func (r *capturingRouter) messages() []*xmpp.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*xmpp.Message
	for _, el := range r.routed {
		if m, ok := el.(*xmpp.Message); ok {
			out = append(out, m)
		}
	}
	return out
}

func subscribedNode(t *testing.T, repo *memory.Repository, host, path, subscriber string) *model.Node {
	t.Helper()
	ctx := context.Background()
	idx, err := repo.NextNodeIdx(ctx)
	require.NoError(t, err)
	node := &model.Node{NodeIdx: idx, Host: host, Path: path, Type: "flat", Owners: []string{"owner@example.com"}, Options: model.DefaultOptions(10)}
	require.NoError(t, repo.PutNode(ctx, node))
	require.NoError(t, repo.PutState(ctx, &model.StateRecord{
		NodeIdx:     idx,
		Entity:      subscriber,
		Affiliation: model.AffiliationMember,
		Subs: []model.Subscription{
			{SubID: "sub1", JID: subscriber, State: model.SubSubscribed, Options: model.DefaultSubOptions()},
		},
	}))
	return node
}

// TestBroadcastDeliversToSubscriber covers spec §4.7's basic fan-out: a
// subscribed entity receives the publish notification.
func TestBroadcastDeliversToSubscriber(t *testing.T) {
	repo := memory.New()
	node := subscribedNode(t, repo, "pubsub.example.com", "news", "bob@example.com")
	rtr := &capturingRouter{}
	b := NewBroadcaster(repo, rtr, nil)

	err := b.Broadcast(context.Background(), node, EventPublish, "item1", nil)
	require.NoError(t, err)

	msgs := rtr.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "bob@example.com", msgs[0].To())
	require.Equal(t, "headline", msgs[0].Type())
}

// TestBroadcastSkipsNonDeliveringSubscription covers the deliver=false
// subscription-option filter, spec §4.7.
func TestBroadcastSkipsNonDeliveringSubscription(t *testing.T) {
	repo := memory.New()
	node := subscribedNode(t, repo, "pubsub.example.com", "news", "bob@example.com")
	ctx := context.Background()
	st, err := repo.GetState(ctx, node.NodeIdx, "bob@example.com")
	require.NoError(t, err)
	st.Subs[0].Options.Deliver = false
	require.NoError(t, repo.PutState(ctx, st))

	rtr := &capturingRouter{}
	b := NewBroadcaster(repo, rtr, nil)
	require.NoError(t, b.Broadcast(ctx, node, EventPublish, "item1", nil))
	require.Empty(t, rtr.messages())
}

// TestBroadcastPresenceFilterRequiresMatchingShow covers the show_values
// presence filter: a subscription restricted to a show-state only delivers
// when a matching resource is present.
func TestBroadcastPresenceFilterRequiresMatchingShow(t *testing.T) {
	repo := memory.New()
	node := subscribedNode(t, repo, "pubsub.example.com", "news", "bob@example.com")
	ctx := context.Background()
	st, err := repo.GetState(ctx, node.NodeIdx, "bob@example.com")
	require.NoError(t, err)
	st.Subs[0].Options.ShowValues = []string{"away"}
	require.NoError(t, repo.PutState(ctx, st))

	rtr := &capturingRouter{}
	presIdx := fakePresenceIndex{"bob@example.com": {{FullJID: "bob@example.com/phone", Show: "chat"}}}
	b := NewBroadcaster(repo, rtr, presIdx)
	require.NoError(t, b.Broadcast(ctx, node, EventPublish, "item1", nil))
	require.Empty(t, rtr.messages())

	presIdx["bob@example.com"] = []ResourcePresence{{FullJID: "bob@example.com/phone", Show: "away"}}
	require.NoError(t, b.Broadcast(ctx, node, EventPublish, "item1", nil))
	require.Len(t, rtr.messages(), 1)
}

type fakePresenceIndex map[string][]ResourcePresence

func (f fakePresenceIndex) Resources(bare string) []ResourcePresence { return f[bare] }

// TestBroadcastStructuralEventSkipsItemsOnlySubscription covers the
// subscription_type filter: a subscriber whose subscription_type is
// "items" doesn't receive structural (delete/purge) events.
func TestBroadcastStructuralEventSkipsItemsOnlySubscription(t *testing.T) {
	repo := memory.New()
	node := subscribedNode(t, repo, "pubsub.example.com", "news", "bob@example.com")
	ctx := context.Background()
	st, err := repo.GetState(ctx, node.NodeIdx, "bob@example.com")
	require.NoError(t, err)
	st.Subs[0].Options.SubscriptionType = "items"
	require.NoError(t, repo.PutState(ctx, st))

	rtr := &capturingRouter{}
	b := NewBroadcaster(repo, rtr, nil)
	require.NoError(t, b.Broadcast(ctx, node, EventPurge, "", nil))
	require.Empty(t, rtr.messages())
}

// TestBuildSubscriptionNotificationCompatTypo covers the historical
// misspelling compat attribute, Open Question decision in DESIGN.md.
func TestBuildSubscriptionNotificationCompatTypo(t *testing.T) {
	repo := memory.New()
	node := subscribedNode(t, repo, "pubsub.example.com", "news", "bob@example.com")
	b := NewBroadcaster(repo, router.Discard, nil)

	msg := b.buildSubscriptionNotification(node, "bob@example.com", "sub1", model.SubSubscribed, true)
	pubsubEl := msg.Elements().Child("pubsub")
	require.NotNil(t, pubsubEl)
	sub := pubsubEl.Elements().Child("subscription")
	require.NotNil(t, sub)
	require.Equal(t, "subscribed", sub.Attribute("subscription"))
	require.Equal(t, "subscribed", sub.Attribute("subsription"))
}
