package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmppfed/fedcore/pubsub/model"
)

type fakeRosterChecker struct {
	presence map[string]bool   // "owner|requester" -> has subscription
	groups   map[string]bool   // "owner|requester|group" -> in group
}

func newFakeRosterChecker() *fakeRosterChecker {
	return &fakeRosterChecker{presence: map[string]bool{}, groups: map[string]bool{}}
}

func (f *fakeRosterChecker) HasPresenceSubscription(owner, requester string) bool {
	return f.presence[owner+"|"+requester]
}

func (f *fakeRosterChecker) InRosterGroup(owner, requester string, groups []string) bool {
	for _, g := range groups {
		if f.groups[owner+"|"+requester+"|"+g] {
			return true
		}
	}
	return false
}

func nodeWithAccess(am model.AccessModel, owner string) *model.Node {
	return &model.Node{Owners: []string{owner}, Options: model.Options{AccessModel: am}}
}

// TestGateOpenAlwaysSubscribes covers spec §4.6's open access model.
func TestGateOpenAlwaysSubscribes(t *testing.T) {
	n := nodeWithAccess(model.AccessOpen, "owner@example.com")
	require.Equal(t, OutcomeSubscribed, Gate(n, "anyone@example.com", false, newFakeRosterChecker()))
}

// TestGatePresenceRequiresSubscription covers the presence access model:
// refused without a presence subscription, subscribed with one.
func TestGatePresenceRequiresSubscription(t *testing.T) {
	n := nodeWithAccess(model.AccessPresence, "owner@example.com")
	rc := newFakeRosterChecker()

	require.Equal(t, OutcomeRefused, Gate(n, "bob@example.com", false, rc))

	rc.presence["owner@example.com|bob@example.com"] = true
	require.Equal(t, OutcomeSubscribed, Gate(n, "bob@example.com", false, rc))
}

// TestGateRosterRequiresBothSubscriptionAndGroup covers the roster access
// model's conjunction of presence subscription and roster-group membership.
func TestGateRosterRequiresBothSubscriptionAndGroup(t *testing.T) {
	n := nodeWithAccess(model.AccessRoster, "owner@example.com")
	n.Options.RosterGroupsAllowed = []string{"friends"}
	rc := newFakeRosterChecker()
	rc.presence["owner@example.com|bob@example.com"] = true

	require.Equal(t, OutcomeRefused, Gate(n, "bob@example.com", false, rc))

	rc.groups["owner@example.com|bob@example.com|friends"] = true
	require.Equal(t, OutcomeSubscribed, Gate(n, "bob@example.com", false, rc))
}

// TestGateAuthorizeAlwaysPends covers the authorize access model: every
// subscribe attempt is pending owner approval, never refused outright.
func TestGateAuthorizeAlwaysPends(t *testing.T) {
	n := nodeWithAccess(model.AccessAuthorize, "owner@example.com")
	require.Equal(t, OutcomePending, Gate(n, "bob@example.com", false, newFakeRosterChecker()))
}

// TestGateWhitelistHonorsPriorAffiliation covers the whitelist access model:
// only a requester the owner already whitelisted may subscribe.
func TestGateWhitelistHonorsPriorAffiliation(t *testing.T) {
	n := nodeWithAccess(model.AccessWhitelist, "owner@example.com")
	require.Equal(t, OutcomeRefused, Gate(n, "bob@example.com", false, newFakeRosterChecker()))
	require.Equal(t, OutcomeSubscribed, Gate(n, "bob@example.com", true, newFakeRosterChecker()))
}
