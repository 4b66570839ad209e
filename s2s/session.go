// Package s2s implements the outgoing server-to-server session manager of
// spec §4.3/§4.4: one FSM per (local, remote) domain pair, negotiating
// stream opening, optional STARTTLS, SASL EXTERNAL, and Server Dialback,
// then relaying queued stanzas once established.
package s2s

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"time"

	"github.com/sony/gobreaker"

	fcerrors "github.com/xmppfed/fedcore/errors"
	"github.com/xmppfed/fedcore/internal/wire"
	"github.com/xmppfed/fedcore/log"
	"github.com/xmppfed/fedcore/resolver"
	"github.com/xmppfed/fedcore/router"
	"github.com/xmppfed/fedcore/transport"
	"github.com/xmppfed/fedcore/xmpp"
	"github.com/xmppfed/fedcore/xmpp/streamerror"
)

const (
	nsJabberServer = "jabber:server"
	nsSASL         = "urn:ietf:params:xml:ns:xmpp-sasl"
	nsStartTLS     = "urn:ietf:params:xml:ns:xmpp-tls"
)

// mailbox message kinds.
type enqueueStanza struct{ stanza xmpp.XElement }
type terminateCmd struct{ reason string }
type terminateIfWaitingCmd struct{}
type dialbackForward struct{ valid bool }
type verifyForward struct{ el xmpp.XElement }

// Session is one (local, remote) domain-pair outgoing FSM, per spec §3/§4.3.
type Session struct {
	cfg      Config
	local    string
	remote   string
	role     Role
	keyGen   KeyGenerator
	registry *Registry
	rtr      router.Router
	res      *resolver.Resolver
	breaker  *gobreaker.CircuitBreaker

	mailbox chan interface{}

	id              string
	state           state
	queue           []xmpp.XElement
	tr              transport.Transport
	wireEvents      <-chan wire.Event
	retryDelay      time.Duration
	useV10          bool
	tlsOffered      bool
	tlsRequired     bool
	tlsEnabled      bool
	authenticated   bool
	dialbackEnabled bool
	mayTryAuth      bool

	registryToken interface{}
	doneCh        chan struct{}
}

// NewSession constructs a session in its initial open_socket state. Callers
// must call Start to run it.
func NewSession(cfg Config, local, remote string, role Role, registry *Registry, rtr router.Router, res *resolver.Resolver) *Session {
	mailboxSize := cfg.MaxFSMQueue
	if mailboxSize <= 0 {
		mailboxSize = 1024
	}
	s := &Session{
		cfg:      cfg,
		local:    local,
		remote:   remote,
		role:     role,
		keyGen:   KeyGenerator{Secret: cfg.DialbackSecret},
		registry: registry,
		rtr:      rtr,
		res:      res,
		mailbox:  make(chan interface{}, mailboxSize),
		id:       newStreamID(),
		state:    openSocket,
		doneCh:   make(chan struct{}),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "s2s-dial:" + remote,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     cfg.maxRetryDelay(),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
	if _, ok := role.(RoleNew); ok {
		s.dialbackEnabled = true
		s.mayTryAuth = true
	}
	return s
}

// ID returns the session's stream id.
func (s *Session) ID() string { return s.id }

// Pair returns the (local, remote) domain pair this session serves.
func (s *Session) Pair() (string, string) { return s.local, s.remote }

// Enqueue appends stanza to the session's mailbox. While the session is
// negotiating, it is queued; while backed off in wait_before_retry, it is
// bounced with remote-server-not-found; if established, it's sent
// immediately; either way FIFO order relative to other Enqueue calls is preserved by the
// mailbox channel (spec §8 "Queue preservation").
func (s *Session) Enqueue(stanza xmpp.XElement) {
	select {
	case s.mailbox <- enqueueStanza{stanza: stanza}:
	case <-s.doneCh:
		s.bounce(stanza, streamerror.ErrConnectionTimeout.Condition)
	}
}

// Terminate asks the session to shut down, bouncing any queued stanzas.
func (s *Session) Terminate(reason string) {
	select {
	case s.mailbox <- terminateCmd{reason: reason}:
	case <-s.doneCh:
	}
}

// TerminateIfWaitingDelay asks the session to shut down only if it is
// currently backed off in wait_before_retry; sessions in any other state
// ignore the request. It is the mailbox-delivered, race-free equivalent of
// inspecting s.state from outside the FSM's own goroutine (spec §4.3/§5's
// terminate_if_waiting_delay).
func (s *Session) TerminateIfWaitingDelay() {
	select {
	case s.mailbox <- terminateIfWaitingCmd{}:
	case <-s.doneCh:
	}
}

// ForwardDialbackResult delivers a verifier sub-session's outcome to this
// (authoritative) session, which is waiting in wait_for_validation on a
// matching <db:verify>.
func (s *Session) ForwardDialbackResult(valid bool) {
	select {
	case s.mailbox <- dialbackForward{valid: valid}:
	case <-s.doneCh:
	}
}

// ForwardVerifyElement delivers an incoming <db:verify> challenge observed
// on the S2S *in* listener to this session. In stream_established a RoleNew
// session answers it itself with its KeyGenerator (handleEstablishedElement);
// in every other state the forward is dropped.
func (s *Session) ForwardVerifyElement(el xmpp.XElement) {
	select {
	case s.mailbox <- verifyForward{el: el}:
	case <-s.doneCh:
	}
}

// Done is closed when the session terminates.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Start runs the FSM loop in its own goroutine — "each session is modelled
// as a cooperative task with a mailbox" (Design Note, §9).
func (s *Session) Start() {
	go s.run()
}

func (s *Session) run() {
	defer close(s.doneCh)
	for s.state != terminated {
		log.Debugf("s2s[%s->%s]: entering state %s", s.local, s.remote, s.state)
		switch s.state {
		case openSocket:
			s.stepOpenSocket()
		case reopenSocket:
			s.stepReopenSocket()
		case waitBeforeRetry:
			s.stepWaitBeforeRetry()
		case streamEstablished:
			s.stepEstablished()
		default:
			s.stepNegotiating()
		}
	}
	s.cleanup()
}

func (s *Session) cleanup() {
	if s.tr != nil {
		_ = s.tr.Close()
	}
	if s.registry != nil && s.registryToken != nil {
		s.registry.removeConnection(s.local, s.remote, s, s.registryToken)
	}
	for _, stanza := range s.drainMailboxStanzas() {
		s.bounce(stanza, streamerror.ErrConnectionTimeout.Condition)
	}
	for _, stanza := range s.queue {
		s.bounce(stanza, "remote-server-not-found")
	}
	s.queue = nil
}

func (s *Session) drainMailboxStanzas() []xmpp.XElement {
	var out []xmpp.XElement
	for {
		select {
		case m := <-s.mailbox:
			if e, ok := m.(enqueueStanza); ok {
				out = append(out, e.stanza)
			}
		default:
			return out
		}
	}
}

// stepOpenSocket resolves the remote domain and connects to the first
// reachable candidate, spec §4.3 "open_socket | init".
func (s *Session) stepOpenSocket() {
	if IsVerifier(s.role) {
		// A verifier sub-session opens no connection and does not
		// register in the pair index: it terminates as soon as it
		// runs, so no <db:verify> exchange is performed for it and
		// no valid/invalid outcome is forwarded to an originator.
		s.state = terminated
		return
	}
	ok, tok := s.registry.tryRegister(s.local, s.remote, s)
	if !ok {
		s.state = terminated
		return
	}
	s.registryToken = tok

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.timeoutFor(openSocket))
	defer cancel()

	families := s.cfg.OutgoingOptions.Families
	targets, err := s.res.Resolve(ctx, s.remote, families)
	if err != nil || len(targets) == 0 {
		s.enterRetryBackoff()
		return
	}

	_, dialErr := s.breaker.Execute(func() (interface{}, error) {
		for _, t := range targets {
			tr, err := transport.Connect(ctx, t.IP.String(), t.Port, transport.DialOptions{
				LocalAddress: s.cfg.OutgoingLocalAddress,
				Timeout:      s.cfg.OutgoingTimeout,
			})
			if err == nil {
				s.tr = tr
				return nil, nil
			}
		}
		return nil, fcerrors.New("s2s: all connect candidates failed")
	})
	if dialErr != nil || s.tr == nil {
		s.enterRetryBackoff()
		return
	}

	s.useV10 = s.cfg.UseStartTLS
	rdr := wire.NewReader(s.tr.Reader())
	s.wireEvents = rdr.Events

	var buf bytes.Buffer
	if err := wire.OpenStream(&buf, s.remote, s.local, "", s.useV10, true); err != nil {
		s.state = terminated
		return
	}
	if err := s.send(buf.Bytes()); err != nil {
		return
	}
	s.state = waitForStream
}

func (s *Session) enterRetryBackoff() {
	if s.retryDelay == 0 {
		s.retryDelay = minRetryDelay + time.Duration(jitter())*time.Millisecond
	} else {
		s.retryDelay *= 2
		if s.retryDelay > s.cfg.maxRetryDelay() {
			s.retryDelay = s.cfg.maxRetryDelay()
		}
	}
	s.state = waitBeforeRetry
}

// jitter returns a pseudo-random offset in [0, 14000) used to land the
// initial retry delay inside spec §4.3's [1000, 15000]ms window.
// jitter draws a random offset in [0, maxRetryDelayDefault-minRetryDelay), so
// minRetryDelay+jitter() lands in [1s, 15s), the initial backoff window of
// spec §4.3.
func jitter() int64 {
	b := randomBytes(8)
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	span := int64((maxRetryDelayDefault - minRetryDelay) / time.Millisecond)
	return int64(v % uint64(span))
}

func (s *Session) stepWaitBeforeRetry() {
	for _, stanza := range s.drainQueueAndMailbox() {
		s.bounce(stanza, "remote-server-not-found")
	}
	timer := time.NewTimer(s.retryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		s.state = terminated // spec: "terminate (so next send creates a fresh session)"
	case m := <-s.mailbox:
		switch c := m.(type) {
		case terminateCmd:
			s.state = terminated
		case terminateIfWaitingCmd:
			s.state = terminated
		case enqueueStanza:
			s.bounce(c.stanza, "remote-server-not-found")
		}
	}
}

func (s *Session) drainQueueAndMailbox() []xmpp.XElement {
	out := append([]xmpp.XElement{}, s.queue...)
	s.queue = nil
	return out
}

func (s *Session) stepReopenSocket() {
	if s.tr != nil {
		_ = s.tr.Close()
		s.tr = nil
	}
	s.state = openSocket
	s.stepOpenSocket()
}

// stepNegotiating handles every pre-established state except open_socket,
// reopen_socket, wait_before_retry, stream_established: it waits for the
// next wire/mailbox event under the state's deadline and dispatches per
// spec §4.3's transition table.
func (s *Session) stepNegotiating() {
	deadline := s.cfg.timeoutFor(s.state)
	var timeoutCh <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case ev, ok := <-s.wireEvents:
		if !ok {
			s.state = terminated
			return
		}
		s.handleWireEvent(ev)
	case m := <-s.mailbox:
		switch c := m.(type) {
		case enqueueStanza:
			s.queue = append(s.queue, c.stanza)
		case terminateCmd:
			s.state = terminated
		case dialbackForward:
			s.handleDialbackForward(c.valid)
		case verifyForward:
			// Only meaningful for a verifier; an authoritative
			// session ignores stray verify forwards pre-establish.
		}
	case <-timeoutCh:
		s.state = terminated
	}
}

func (s *Session) handleWireEvent(ev wire.Event) {
	switch ev.Kind {
	case wire.EventStreamStart:
		s.handleStreamStart(ev.Attrs)
	case wire.EventElement:
		s.handleElement(ev.Element)
	case wire.EventStreamEnd, wire.EventClosed:
		s.state = terminated
	case wire.EventStreamError:
		s.state = terminated
	}
}

func (s *Session) handleStreamStart(attrs map[string]string) {
	if attrs["xmlns"] != nsJabberServer {
		s.sendStreamError(streamerror.ErrInvalidNamespace)
		s.state = terminated
		return
	}
	if IsVerifier(s.role) {
		return
	}
	if _, hasDB := attrs["xmlns:db"]; hasDB && attrs["version"] == "" {
		s.sendDialbackKey()
		s.state = waitForValidation
		return
	}
	if attrs["version"] == "1.0" {
		s.dialbackEnabled = attrs["xmlns:db"] != ""
		s.state = waitForFeatures
		return
	}
	s.sendDialbackKey()
	s.state = waitForValidation
}

func (s *Session) sendDialbackKey() {
	nr, ok := s.role.(RoleNew)
	if !ok {
		return
	}
	el := xmpp.NewElementNamespace("result", NSDialback)
	el.SetAttribute("from", s.local)
	el.SetAttribute("to", s.remote)
	el.SetText(nr.Key)
	s.writeElement(el)
}

func (s *Session) handleElement(el xmpp.XElement) {
	switch s.state {
	case waitForFeatures:
		s.handleFeatures(el)
	case waitForAuthResult:
		s.handleAuthResult(el)
	case waitForStartTLSProceed:
		s.handleStartTLSProceed(el)
	case waitForValidation:
		s.handleValidationResult(el)
	case streamEstablished:
		s.handleEstablishedElement(el)
	}
}

func (s *Session) handleFeatures(features xmpp.XElement) {
	saslEl := features.Elements().ChildNamespace("mechanisms", nsSASL)
	hasExternal := false
	if saslEl != nil {
		for _, m := range saslEl.Elements().All() {
			if m.Name() == "mechanism" && m.Text() == "EXTERNAL" {
				hasExternal = true
			}
		}
	}
	_, isNew := s.role.(RoleNew)

	if hasExternal && isNew && s.mayTryAuth {
		el := xmpp.NewElementNamespace("auth", nsSASL)
		el.SetAttribute("mechanism", "EXTERNAL")
		el.SetText(base64.StdEncoding.EncodeToString([]byte(s.local)))
		s.writeElement(el)
		s.state = waitForAuthResult
		return
	}

	startTLS := features.Elements().ChildNamespace("starttls", nsStartTLS)
	if startTLS != nil {
		s.tlsRequired = startTLS.Elements().Child("required") != nil
		s.tlsOffered = true
		if s.cfg.UseStartTLS && !s.tlsEnabled {
			s.writeElement(xmpp.NewElementNamespace("starttls", nsStartTLS))
			s.state = waitForStartTLSProceed
			return
		}
		if s.tlsRequired && !s.cfg.UseStartTLS {
			s.useV10 = false
			s.state = reopenSocket
			return
		}
	}

	if s.authenticated {
		s.flushAndEstablish()
		return
	}
	if s.dialbackEnabled {
		s.sendDialbackKey()
		s.state = waitForValidation
		return
	}
	// Nothing left to negotiate and we were never authenticated or
	// dialback-validated: treat as an established plain stream (some
	// peers omit dialback entirely once TLS+SASL succeed).
	s.flushAndEstablish()
}

func (s *Session) handleAuthResult(el xmpp.XElement) {
	switch el.Name() {
	case "success":
		s.authenticated = true
		s.resetStreamAndReopen()
	case "failure":
		s.state = reopenSocket
	}
}

func (s *Session) handleStartTLSProceed(el xmpp.XElement) {
	if el.Name() != "proceed" {
		s.state = terminated
		return
	}
	tlsCfg := s.cfg.tlsConfigFor(s.remote)
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: s.remote}
	}
	if err := s.tr.StartTLS(tlsCfg); err != nil {
		s.state = terminated
		return
	}
	s.tlsEnabled = true
	s.resetStreamAndReopen()
}

// resetStreamAndReopen restarts the XML parser and resends the opening tag
// over the (possibly newly TLS-wrapped) connection, per spec §4.3's
// wait_for_auth_result/wait_for_starttls_proceed success transitions.
func (s *Session) resetStreamAndReopen() {
	rdr := wire.NewReader(s.tr.Reader())
	s.wireEvents = rdr.Events
	var buf bytes.Buffer
	if err := wire.OpenStream(&buf, s.remote, s.local, "", s.useV10, s.dialbackEnabled); err != nil {
		s.state = terminated
		return
	}
	if err := s.send(buf.Bytes()); err != nil {
		return
	}
	s.state = waitForStream
}

func (s *Session) handleValidationResult(el xmpp.XElement) {
	if el.Namespace() != NSDialback {
		return
	}
	switch el.Name() {
	case "result":
		if el.Attribute("type") == "valid" {
			s.flushAndEstablish()
		} else {
			s.state = terminated
		}
	case "verify":
		// A matching originator forwarded its verify outcome via
		// ForwardDialbackResult; this branch handles the case where
		// the remote sends the verify response on this same stream.
		valid := el.Attribute("type") == "valid"
		s.handleDialbackForward(valid)
	}
}

func (s *Session) handleDialbackForward(valid bool) {
	if valid {
		s.flushAndEstablish()
		return
	}
	s.state = terminated
}

func (s *Session) handleEstablishedElement(el xmpp.XElement) {
	if el.Namespace() == NSDialback && el.Name() == "verify" {
		// spec: "stream_established | incoming verify element |
		// forward to originator" — this session IS the originator
		// for its own pair, so a peer asking us to re-verify a key we
		// issued is answered on the spot.
		if _, ok := s.role.(RoleNew); !ok {
			return
		}
		valid := s.keyGen.Verify(el.Attribute("to"), el.Attribute("from"), el.Attribute("id"), el.Text())
		reply := xmpp.NewElementNamespace("verify", NSDialback)
		reply.SetAttribute("from", el.Attribute("to"))
		reply.SetAttribute("to", el.Attribute("from"))
		reply.SetAttribute("id", el.Attribute("id"))
		if valid {
			reply.SetAttribute("type", "valid")
		} else {
			reply.SetAttribute("type", "invalid")
		}
		s.writeElement(reply)
		return
	}
	s.rtr.Route(el)
}

// flushAndEstablish flushes the queued stanzas in enqueue order then enters
// stream_established, spec §4.3 "flush queue → stream_established."
func (s *Session) flushAndEstablish() {
	for _, stanza := range s.queue {
		s.writeElement(stanza)
	}
	s.queue = nil
	s.retryDelay = 0
	s.state = streamEstablished
}

// stepEstablished is the long-running loop: sends arriving stanzas
// directly, resets the idle watchdog on every send, and forwards dialback
// verify challenges, spec §4.3/§5.
func (s *Session) stepEstablished() {
	idle := time.NewTimer(s.cfg.idleTimeout())
	defer idle.Stop()
	for s.state == streamEstablished {
		select {
		case ev, ok := <-s.wireEvents:
			if !ok {
				s.state = terminated
				return
			}
			s.handleWireEvent(ev)
			resetTimer(idle, s.cfg.idleTimeout())
		case m := <-s.mailbox:
			switch c := m.(type) {
			case enqueueStanza:
				s.writeElement(c.stanza)
				resetTimer(idle, s.cfg.idleTimeout())
			case terminateCmd:
				s.state = terminated
			case verifyForward:
				s.handleEstablishedElement(c.el)
			}
		case <-idle.C:
			s.state = terminated
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// send writes b over the transport, bounded by its configured send-timeout
// (spec §4.2); a failed or timed-out send fails the session rather than
// leaving it blocked indefinitely.
func (s *Session) send(b []byte) error {
	if s.tr == nil {
		return nil
	}
	if err := s.tr.Send(b); err != nil {
		log.Errorf("s2s[%s->%s]: send error: %v", s.local, s.remote, err)
		s.state = terminated
		return err
	}
	return nil
}

func (s *Session) writeElement(el xmpp.XElement) {
	var buf bytes.Buffer
	if err := wire.WriteElement(&buf, el); err != nil {
		log.Errorf("s2s[%s->%s]: encode error: %v", s.local, s.remote, err)
		s.state = terminated
		return
	}
	_ = s.send(buf.Bytes())
}

func (s *Session) sendStreamError(se *streamerror.StreamError) {
	el := xmpp.NewElementName(se.Condition)
	el.SetNamespace("urn:ietf:params:xml:ns:xmpp-streams")
	var buf bytes.Buffer
	if err := wire.WriteElement(&buf, el); err != nil {
		return
	}
	_ = s.send(buf.Bytes())
}

// bounce implements the bounce semantics of spec §4.4 for messages and
// IQs: an *xmpp.Message or *xmpp.IQ whose type is not error/result gets an
// error reply routed back to the sender; error/result stanzas are dropped
// silently. Presence stanzas, and stanzas of any other concrete type, are
// dropped without a reply.
func (s *Session) bounce(stanza xmpp.XElement, condition string) {
	t := stanza.Attributes().Get("type")
	if t == xmpp.ErrorType || t == xmpp.ResultType {
		return
	}
	switch stanza.Name() {
	case "message":
		if msg, ok := stanza.(*xmpp.Message); ok {
			var bounced *xmpp.Message
			if condition == "remote-server-not-found" {
				bounced = msg.RemoteServerNotFoundError()
			} else {
				bounced = msg.RemoteServerTimeoutError()
			}
			_ = s.rtr.Route(bounced)
		}
	case "iq":
		if iq, ok := stanza.(*xmpp.IQ); ok {
			var bounced *xmpp.IQ
			if condition == "remote-server-not-found" {
				bounced = iq.RemoteServerNotFoundError()
			} else {
				bounced = iq.RemoteServerTimeoutError()
			}
			_ = s.rtr.Route(bounced)
		}
	}
}
