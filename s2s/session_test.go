package s2s

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xmppfed/fedcore/config"
	"github.com/xmppfed/fedcore/resolver"
	"github.com/xmppfed/fedcore/xmpp"
)

// capturingRouter records every routed stanza for assertions, standing in
// for the out-of-scope stanza router (spec §1).
type capturingRouter struct {
	mu      sync.Mutex
	routed  []xmpp.XElement
}

func (r *capturingRouter) Route(stanza xmpp.XElement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routed = append(r.routed, stanza)
	return nil
}

func (r *capturingRouter) last() xmpp.XElement {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.routed) == 0 {
		return nil
	}
	return r.routed[len(r.routed)-1]
}

func testSession(t *testing.T, rtr *capturingRouter) *Session {
	cfg := Config{S2S: config.DefaultS2S(), DialbackSecret: "s3cr3t"}
	reg := NewRegistry(cfg, rtr, resolver.New(config.DNSOptions{}))
	return NewSession(cfg, "local.example", "remote.example", RoleNew{Key: "k"}, reg, rtr, reg.res)
}

// TestBounceDropsErrorAndResultStanzas covers spec §4.4 "bounce: drops error
// and result-type stanzas rather than re-bouncing them."
func TestBounceDropsErrorAndResultStanzas(t *testing.T) {
	rtr := &capturingRouter{}
	s := testSession(t, rtr)

	errIQ := xmpp.NewIQType("1", xmpp.ErrorType)
	s.bounce(errIQ, "remote-server-not-found")
	require.Nil(t, rtr.last())

	resultIQ := xmpp.NewIQType("2", xmpp.ResultType)
	s.bounce(resultIQ, "remote-server-not-found")
	require.Nil(t, rtr.last())
}

// TestBounceMessageSynthesizesNotFoundError covers spec §4.4's bounce
// synthesizing a remote-server-not-found reply for message stanzas.
func TestBounceMessageSynthesizesNotFoundError(t *testing.T) {
	rtr := &capturingRouter{}
	s := testSession(t, rtr)

	msg := xmpp.NewMessageType("3", xmpp.ChatType)
	s.bounce(msg, "remote-server-not-found")

	bounced, ok := rtr.last().(*xmpp.Message)
	require.True(t, ok)
	require.Equal(t, xmpp.ErrorType, bounced.Type())
}

// TestBounceIQSynthesizesTimeoutError covers the timeout-condition branch
// of the same bounce logic for IQ stanzas.
func TestBounceIQSynthesizesTimeoutError(t *testing.T) {
	rtr := &capturingRouter{}
	s := testSession(t, rtr)

	iq := xmpp.NewIQType("4", xmpp.GetType)
	s.bounce(iq, "remote-server-timeout")

	bounced, ok := rtr.last().(*xmpp.IQ)
	require.True(t, ok)
	require.Equal(t, xmpp.ErrorType, bounced.Type())
}

// TestEnterRetryBackoffInitialWindow covers spec §4.3's documented initial
// retry delay window of [1000, 15000]ms.
func TestEnterRetryBackoffInitialWindow(t *testing.T) {
	rtr := &capturingRouter{}
	s := testSession(t, rtr)

	s.enterRetryBackoff()
	require.Equal(t, waitBeforeRetry, s.state)
	require.GreaterOrEqual(t, s.retryDelay, minRetryDelay)
	require.Less(t, s.retryDelay, minRetryDelay+14000*time.Millisecond)
}

// TestEnterRetryBackoffDoublesAndCaps covers the exponential-backoff-with-
// cap behavior: each subsequent call doubles the delay until it saturates
// at s2s_max_retry_delay.
func TestEnterRetryBackoffDoublesAndCaps(t *testing.T) {
	rtr := &capturingRouter{}
	s := testSession(t, rtr)
	s.cfg.MaxRetryDelay = 5 * time.Second

	s.retryDelay = 3 * time.Second
	s.enterRetryBackoff()
	require.Equal(t, 5*time.Second, s.retryDelay) // 6s doubled, capped at 5s

	s.retryDelay = 1 * time.Second
	s.enterRetryBackoff()
	require.Equal(t, 2*time.Second, s.retryDelay) // under the cap, doubles freely
}

// TestDrainQueueAndMailboxClearsQueue ensures the pre-established FIFO
// queue is fully drained (and reset) in one call, spec §8 "Queue
// preservation."
func TestDrainQueueAndMailboxClearsQueue(t *testing.T) {
	rtr := &capturingRouter{}
	s := testSession(t, rtr)
	m1 := xmpp.NewMessageType("1", xmpp.ChatType)
	m2 := xmpp.NewMessageType("2", xmpp.ChatType)
	s.queue = []xmpp.XElement{m1, m2}

	drained := s.drainQueueAndMailbox()
	require.Equal(t, []xmpp.XElement{m1, m2}, drained)
	require.Empty(t, s.queue)
}

// TestNewSessionSetsDialbackForNewRole covers spec §4.3: a RoleNew session
// starts with dialback enabled and may attempt SASL EXTERNAL, while a
// RoleVerify sub-session does neither.
func TestNewSessionSetsDialbackForNewRole(t *testing.T) {
	rtr := &capturingRouter{}
	cfg := Config{S2S: config.DefaultS2S(), DialbackSecret: "s3cr3t"}
	reg := NewRegistry(cfg, rtr, resolver.New(config.DNSOptions{}))

	newSess := NewSession(cfg, "local.example", "remote.example", RoleNew{Key: "k"}, reg, rtr, reg.res)
	require.True(t, newSess.dialbackEnabled)
	require.True(t, newSess.mayTryAuth)

	verifySess := NewSession(cfg, "local.example", "remote.example", RoleVerify{Key: "k"}, reg, rtr, reg.res)
	require.False(t, verifySess.dialbackEnabled)
	require.False(t, verifySess.mayTryAuth)
}
