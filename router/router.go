// Package router defines the stanza-routing collaborator (spec §1: "the
// higher-level stanza router that delivers packets to and from these
// components" is out of scope, a collaborator). This package is the narrow
// seam the S2S registry and Pub/Sub broadcaster call into; the concrete
// C2S/S2S delivery fan-out lives in the process that wires this tree
// together, not here.
package router

import "github.com/xmppfed/fedcore/xmpp"

// Router delivers a stanza to its destination, be that a local C2S stream,
// a local Pub/Sub service host, or (via the S2S session manager) a remote
// domain.
type Router interface {
	Route(stanza xmpp.XElement) error
}

// Func adapts a plain function to the Router interface.
type Func func(stanza xmpp.XElement) error

func (f Func) Route(stanza xmpp.XElement) error { return f(stanza) }

// Discard is a Router that drops every stanza; useful as a zero-value
// collaborator in tests that don't care about delivery.
var Discard Router = Func(func(xmpp.XElement) error { return nil })
