package pubsub

// The error taxonomy of spec §7: client-fault conditions the service layer
// (an IQ-handling front end, not part of this module)
// translates into the matching xmpp.IQ error-reply constructor.

// ErrForbidden corresponds to stanza condition "forbidden".
type ErrForbidden struct{}

func (ErrForbidden) Error() string { return "pubsub: forbidden" }

// ErrNotAllowed corresponds to stanza condition "not-allowed".
type ErrNotAllowed struct{}

func (ErrNotAllowed) Error() string { return "pubsub: not-allowed" }

// ErrFeatureNotImplemented corresponds to "feature-not-implemented" with the
// named feature carried in the extended <unsupported/> child.
type ErrFeatureNotImplemented struct {
	Feature string
}

func (e ErrFeatureNotImplemented) Error() string {
	return "pubsub: feature-not-implemented " + e.Feature
}
