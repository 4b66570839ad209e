package xmpp

import "github.com/xmppfed/fedcore/xmpp/stanzaerror"

// IQ type values, RFC 6120 §8.2.3.
const (
	GetType    = "get"
	SetType    = "set"
	ResultType = "result"
)

// IQ wraps an <iq/> stanza.
type IQ struct {
	stanza
}

// NewIQType returns a new IQ element with the given id and type.
func NewIQType(identifier, iqType string) *IQ {
	iq := &IQ{}
	iq.SetName("iq")
	iq.SetID(identifier)
	iq.SetAttribute("type", iqType)
	return iq
}

func (iq *IQ) IsGet() bool    { return iq.Type() == GetType }
func (iq *IQ) IsSet() bool    { return iq.Type() == SetType }
func (iq *IQ) IsResult() bool { return iq.Type() == ResultType }

// ResultIQ returns a <iq type="result"/> reply addressed back to the
// sender, carrying the same id and swapped from/to.
func (iq *IQ) ResultIQ() *IQ {
	res := NewIQType(iq.ID(), ResultType)
	res.SetFrom(iq.To())
	res.SetTo(iq.From())
	return res
}

func (iq *IQ) errorReply(condition string, pubsubCond stanzaerror.PubSubCondition) *IQ {
	res := &IQ{}
	res.SetName("iq")
	res.SetID(iq.ID())
	res.SetFrom(iq.To())
	res.SetTo(iq.From())
	res.AppendElements(iq.Elements().All()...)
	attachStanzaError(&res.Element, condition, pubsubCond)
	return res
}

func (iq *IQ) BadRequestError() *IQ          { return iq.errorReply(stanzaerror.BadRequest, "") }
func (iq *IQ) ConflictError() *IQ            { return iq.errorReply(stanzaerror.Conflict, "") }
func (iq *IQ) ForbiddenError() *IQ           { return iq.errorReply(stanzaerror.Forbidden, "") }
func (iq *IQ) ItemNotFoundError() *IQ        { return iq.errorReply(stanzaerror.ItemNotFound, "") }
func (iq *IQ) InternalServerError() *IQ      { return iq.errorReply(stanzaerror.InternalServerError, "") }
func (iq *IQ) NotAcceptableError() *IQ       { return iq.errorReply(stanzaerror.NotAcceptable, "") }
func (iq *IQ) NotAllowedError() *IQ          { return iq.errorReply(stanzaerror.NotAllowed, "") }
func (iq *IQ) ServiceUnavailableError() *IQ  { return iq.errorReply(stanzaerror.ServiceUnavailable, "") }
func (iq *IQ) RemoteServerNotFoundError() *IQ {
	return iq.errorReply(stanzaerror.RemoteServerNotFound, "")
}
func (iq *IQ) RemoteServerTimeoutError() *IQ {
	return iq.errorReply(stanzaerror.RemoteServerTimeout, "")
}

// FeatureNotImplementedError returns <feature-not-implemented/> with the
// extended <unsupported feature="..."/> child named in spec §7.
func (iq *IQ) FeatureNotImplementedError(feature string) *IQ {
	res := &IQ{}
	res.SetName("iq")
	res.SetID(iq.ID())
	res.SetFrom(iq.To())
	res.SetTo(iq.From())
	res.AppendElements(iq.Elements().All()...)
	res.SetAttribute("type", ErrorType)

	errEl := NewElementName("error")
	errEl.SetAttribute("type", string(stanzaerror.DefaultType(stanzaerror.FeatureNotImplemented)))
	errEl.AppendElement(NewElementNamespace(stanzaerror.FeatureNotImplemented, "urn:ietf:params:xml:ns:xmpp-stanzas"))
	unsupported := NewElementNamespace(string(stanzaerror.Unsupported), stanzaerror.NSPubSubErrors)
	unsupported.SetAttribute("feature", feature)
	errEl.AppendElement(unsupported)
	res.AppendElement(errEl)
	return res
}

// PubSubError returns an error reply carrying both a standard condition and
// a PubSub extended condition child, e.g. forbidden + closed-node.
func (iq *IQ) PubSubError(condition string, pubsubCond stanzaerror.PubSubCondition) *IQ {
	return iq.errorReply(condition, pubsubCond)
}
