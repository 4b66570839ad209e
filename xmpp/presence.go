package xmpp

// Presence type values, RFC 6121 §4.7.1.
const (
	AvailableType    = ""
	UnavailableType  = "unavailable"
	SubscribeType    = "subscribe"
	SubscribedType   = "subscribed"
	UnsubscribeType  = "unsubscribe"
	UnsubscribedType = "unsubscribed"
	ProbeType        = "probe"
)

// ShowState is the <show/> value of an available presence, used by the
// Pub/Sub broadcaster's show_values subscription filter (spec §4.7).
type ShowState int

const (
	// AvailableShowState is "no <show/> element" (plain available/"online").
	AvailableShowState ShowState = iota
	ChatShowState
	AwayShowState
	DNDShowState
	XAShowState
)

// showStateNames is the wire value for each ShowState, matching the
// show_values option vocabulary in spec §6 ({online, away, chat, dnd, xa}).
var showStateNames = map[ShowState]string{
	AvailableShowState: "online",
	ChatShowState:       "chat",
	AwayShowState:       "away",
	DNDShowState:        "dnd",
	XAShowState:         "xa",
}

func (s ShowState) String() string { return showStateNames[s] }

// ParseShowState maps the show_values vocabulary (and the wire <show/>
// text) back to a ShowState.
func ParseShowState(name string) (ShowState, bool) {
	for s, n := range showStateNames {
		if n == name {
			return s, true
		}
	}
	return AvailableShowState, false
}

// Presence wraps a <presence/> stanza.
type Presence struct {
	stanza
	showState ShowState
}

// NewPresence returns a new Presence element with the given id and type.
func NewPresence(identifier, presenceType string) *Presence {
	p := &Presence{}
	p.SetName("presence")
	if identifier != "" {
		p.SetID(identifier)
	}
	if presenceType != "" {
		p.SetAttribute("type", presenceType)
	}
	return p
}

// SetShow sets the <show/> child and mirrors it into ShowState.
func (p *Presence) SetShow(s ShowState) {
	p.showState = s
	if s == AvailableShowState {
		return
	}
	showEl := NewElementName("show")
	showEl.SetText(s.String())
	p.AppendElement(showEl)
}

// ShowState returns the state last set with SetShow; AvailableShowState if
// SetShow was never called. A <show/> child is not parsed into it.
func (p *Presence) ShowState() ShowState { return p.showState }

func (p *Presence) IsAvailable() bool   { return p.Type() == AvailableType }
func (p *Presence) IsUnavailable() bool { return p.Type() == UnavailableType }
func (p *Presence) IsSubscribe() bool   { return p.Type() == SubscribeType }
func (p *Presence) IsSubscribed() bool  { return p.Type() == SubscribedType }
