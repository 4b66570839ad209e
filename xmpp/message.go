package xmpp

import (
	"fmt"

	"github.com/xmppfed/fedcore/xmpp/jid"
	"github.com/xmppfed/fedcore/xmpp/stanzaerror"
)

// Message type values, RFC 6121 §5.2.2.
const (
	NormalType    = "normal"
	HeadlineType  = "headline"
	ChatType      = "chat"
	GroupChatType = "groupchat"
)

// Message wraps a <message/> stanza.
type Message struct {
	stanza
}

// NewMessageType returns a new Message element with the given id and type.
func NewMessageType(identifier, messageType string) *Message {
	m := &Message{}
	m.SetName("message")
	m.SetID(identifier)
	if messageType != "" {
		m.SetAttribute("type", messageType)
	}
	return m
}

// NewMessageFromElement adapts a generic element into a Message, validating
// its name and type attribute.
func NewMessageFromElement(e XElement, from, to *jid.JID) (*Message, error) {
	if e.Name() != "message" {
		return nil, fmt.Errorf("xmpp: wrong Message element name: %s", e.Name())
	}
	mType := e.Attributes().Get("type")
	if !isMessageType(mType) {
		return nil, fmt.Errorf("xmpp: invalid Message type attribute: %s", mType)
	}
	m := &Message{}
	m.SetName("message")
	m.AppendElements(e.Elements().All()...)
	for _, a := range e.Attributes() {
		m.SetAttribute(a.Label, a.Value)
	}
	m.SetFrom(from.String())
	m.SetTo(to.String())
	return m, nil
}

func isMessageType(t string) bool {
	switch t {
	case "", NormalType, HeadlineType, ChatType, GroupChatType, ErrorType:
		return true
	default:
		return false
	}
}

func (m *Message) IsNormal() bool    { return m.Type() == NormalType || m.Type() == "" }
func (m *Message) IsHeadline() bool  { return m.Type() == HeadlineType }
func (m *Message) IsChat() bool      { return m.Type() == ChatType }
func (m *Message) IsGroupChat() bool { return m.Type() == GroupChatType }

// IsMessageWithBody reports whether the message carries a <body/> child.
func (m *Message) IsMessageWithBody() bool { return m.Elements().Child("body") != nil }

func (m *Message) errorReply(condition string) *Message {
	res := &Message{}
	res.SetName("message")
	res.SetID(m.ID())
	res.SetFrom(m.To())
	res.SetTo(m.From())
	res.AppendElements(m.Elements().All()...)
	attachStanzaError(&res.Element, condition, "")
	return res
}

// RemoteServerNotFoundError bounces the message per the S2S registry bounce
// semantics in spec §4.4.
func (m *Message) RemoteServerNotFoundError() *Message {
	return m.errorReply(stanzaerror.RemoteServerNotFound)
}

// RemoteServerTimeoutError bounces the message with remote-server-timeout.
func (m *Message) RemoteServerTimeoutError() *Message {
	return m.errorReply(stanzaerror.RemoteServerTimeout)
}

func (m *Message) ServiceUnavailableError() *Message {
	return m.errorReply(stanzaerror.ServiceUnavailable)
}

func (m *Message) ForbiddenError() *Message { return m.errorReply(stanzaerror.Forbidden) }
