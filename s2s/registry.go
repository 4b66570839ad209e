package s2s

import (
	"sync"

	"github.com/xmppfed/fedcore/resolver"
	"github.com/xmppfed/fedcore/router"
	"github.com/xmppfed/fedcore/xmpp"
)

// pairKey identifies a (local, remote) domain pair's single outgoing
// session, spec §4.4: "at most one registered outgoing session per pair."
type pairKey struct {
	local  string
	remote string
}

// Registry is the process-wide table of outgoing S2S sessions, one per
// (local, remote) pair. Grounded directly on the getOrDial/LoadOrStore
// pattern of the pack's jefjin-jackal s2s/server.go: the first goroutine to
// reach a pair wins the race and starts the session; every later comer
// either reuses it or (if it lost a concurrent register) enqueues onto the
// winner.
type Registry struct {
	cfg Config
	rtr router.Router
	res *resolver.Resolver

	sessions sync.Map // pairKey -> *Session
}

// NewRegistry constructs an empty registry.
func NewRegistry(cfg Config, rtr router.Router, res *resolver.Resolver) *Registry {
	return &Registry{cfg: cfg, rtr: rtr, res: res}
}

// Send routes stanza to the (local, remote) pair's session, creating one if
// none exists yet, per spec §4.4 "send."
func (r *Registry) Send(local, remote string, stanza xmpp.XElement) {
	sess := r.getOrCreate(local, remote)
	sess.Enqueue(stanza)
}

func (r *Registry) getOrCreate(local, remote string) *Session {
	key := pairKey{local: local, remote: remote}
	if v, ok := r.sessions.Load(key); ok {
		return v.(*Session)
	}

	role := RoleNew{Key: KeyGenerator{Secret: r.cfg.DialbackSecret}.Generate(local, remote, "")}
	candidate := NewSession(r.cfg, local, remote, role, r, r.rtr, r.res)

	actual, loaded := r.sessions.LoadOrStore(key, candidate)
	if loaded {
		// Another goroutine won the race; discard our candidate
		// without starting it (it never registered, so Start would
		// just dial and find the same pair already registered).
		return actual.(*Session)
	}
	candidate.Start()
	return candidate
}

// tryRegister is the compare-and-set half of the race described above,
// called from within the session's own open_socket step rather than from
// Send: Send already performed the LoadOrStore, so tryRegister here mainly
// guards against a session re-entering open_socket (e.g. after
// reopen_socket) once another session has since taken the pair.
func (r *Registry) tryRegister(local, remote string, s *Session) (bool, interface{}) {
	key := pairKey{local: local, remote: remote}
	actual, _ := r.sessions.LoadOrStore(key, s)
	if actual.(*Session) != s {
		return false, nil
	}
	return true, s
}

// removeConnection compare-and-clears the pair entry, spec §4.4
// "remove_connection": only the session that currently owns the slot can
// clear it, so a stale terminate from an already-replaced session is a
// no-op.
func (r *Registry) removeConnection(local, remote string, s *Session, token interface{}) {
	if token == nil {
		return
	}
	key := pairKey{local: local, remote: remote}
	if v, ok := r.sessions.Load(key); ok && v.(*Session) == s {
		r.sessions.Delete(key)
	}
}

// GetConnections returns every currently registered session whose local
// domain matches, for diagnostics and host shutdown.
func (r *Registry) GetConnections(local string) []*Session {
	var out []*Session
	r.sessions.Range(func(k, v interface{}) bool {
		if k.(pairKey).local == local {
			out = append(out, v.(*Session))
		}
		return true
	})
	return out
}

// TerminateAll shuts down every registered session for local, bouncing
// their queues; used on host/listener shutdown.
func (r *Registry) TerminateAll(local, reason string) {
	for _, s := range r.GetConnections(local) {
		s.Terminate(reason)
	}
}

// TerminateWaitingDelay cancels the (local, remote) pair's session, but only
// if it is currently backed off in wait_before_retry; a session mid-stream
// or already established is left alone, per spec §4.3's terminate_if_
// waiting_delay command, which "terminates all sessions in this state so the
// next outbound stanza attempts a fresh connection." The session itself
// decides whether the request applies, since only its own goroutine may
// safely read its state.
func (r *Registry) TerminateWaitingDelay(local, remote string) {
	key := pairKey{local: local, remote: remote}
	v, ok := r.sessions.Load(key)
	if !ok {
		return
	}
	v.(*Session).TerminateIfWaitingDelay()
}

// TerminateAllWaitingDelay sweeps every registered session for local,
// cancelling each one that is currently backed off in wait_before_retry;
// this is the host-wide variant of TerminateWaitingDelay, spec §5's
// "broadcast cancellation to sessions in backoff."
func (r *Registry) TerminateAllWaitingDelay(local string) {
	for _, s := range r.GetConnections(local) {
		s.TerminateIfWaitingDelay()
	}
}
