package xmpp

import (
	"github.com/xmppfed/fedcore/xmpp/jid"
	"github.com/xmppfed/fedcore/xmpp/stanzaerror"
)

// stanza embeds Element and adds the from/to/id/type address handling
// shared by IQ, Message, and Presence.
type stanza struct {
	Element
	fromJID *jid.JID
	toJID   *jid.JID
}

func (s *stanza) ID() string   { return s.Attribute("id") }
func (s *stanza) Type() string { return s.Attribute("type") }

func (s *stanza) SetID(id string) { s.SetAttribute("id", id) }

func (s *stanza) From() string { return s.Attribute("from") }
func (s *stanza) To() string   { return s.Attribute("to") }

func (s *stanza) SetFrom(from string) {
	s.SetAttribute("from", from)
	s.fromJID, _ = jid.NewWithString(from, false)
}

func (s *stanza) SetTo(to string) {
	s.SetAttribute("to", to)
	s.toJID, _ = jid.NewWithString(to, false)
}

// FromJID returns the parsed from-address, parsing lazily if SetFrom was
// never called but the attribute is present (e.g. on a stanza built by
// decoding the wire).
func (s *stanza) FromJID() *jid.JID {
	if s.fromJID == nil {
		s.fromJID, _ = jid.NewWithString(s.From(), false)
	}
	return s.fromJID
}

// ToJID returns the parsed to-address, parsed lazily as in FromJID.
func (s *stanza) ToJID() *jid.JID {
	if s.toJID == nil {
		s.toJID, _ = jid.NewWithString(s.To(), false)
	}
	return s.toJID
}

// IsError reports whether this stanza's @type is "error".
func (s *stanza) IsError() bool { return s.Type() == ErrorType }

// ErrorType is the stanza-type value shared by IQ/Message/Presence error
// responses.
const ErrorType = "error"

// attachStanzaError appends an <error/> child with the given condition and
// optional PubSub extended condition, and flips @type to "error".
func attachStanzaError(e *Element, condition string, pubsubCond stanzaerror.PubSubCondition) {
	e.SetAttribute("type", ErrorType)
	errEl := NewElementName("error")
	errEl.SetAttribute("type", string(stanzaerror.DefaultType(condition)))
	condEl := NewElementNamespace(condition, "urn:ietf:params:xml:ns:xmpp-stanzas")
	errEl.AppendElement(condEl)
	if pubsubCond != "" {
		extEl := NewElementNamespace(string(pubsubCond), stanzaerror.NSPubSubErrors)
		errEl.AppendElement(extEl)
	}
	e.AppendElement(errEl)
}
