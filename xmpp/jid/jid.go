// Package jid implements XMPP addresses (RFC 6122 / RFC 7622): the
// node@domain/resource triple used to address every stanza in this tree.
package jid

import (
	"strings"

	"golang.org/x/text/secure/precis"
)

// MatchingOptions configure JID.Matches.
type MatchingOptions int

const (
	// MatchesNode matches the localpart.
	MatchesNode MatchingOptions = 1 << iota
	// MatchesDomain matches the domainpart.
	MatchesDomain
	// MatchesResource matches the resourcepart.
	MatchesResource
	// MatchesBare matches node+domain only.
	MatchesBare = MatchesNode | MatchesDomain
	// MatchesFull matches node+domain+resource.
	MatchesFull = MatchesNode | MatchesDomain | MatchesResource
)

// JID represents an XMPP address of the form node@domain/resource.
type JID struct {
	node     string
	domain   string
	resource string
}

// New builds a JID from its three parts, normalizing node and resource with
// the PRECIS profiles used by the rest of the ecosystem for nodeprep and
// resourceprep (golang.org/x/text/secure/precis), and lower-casing the
// domain per RFC 7622 §3.2.
func New(node, domain, resource string, checkPrecis bool) (*JID, error) {
	j := &JID{node: node, domain: strings.ToLower(domain), resource: resource}
	if !checkPrecis {
		return j, nil
	}
	if node != "" {
		n, err := precis.UsernameCaseMapped.String(node)
		if err != nil {
			return nil, err
		}
		j.node = n
	}
	if resource != "" {
		r, err := precis.OpaqueString.String(resource)
		if err != nil {
			return nil, err
		}
		j.resource = r
	}
	return j, nil
}

// NewWithString parses a JID literal of the form [node@]domain[/resource].
func NewWithString(str string, checkPrecis bool) (*JID, error) {
	var node, domain, resource string
	s := str
	if at := strings.Index(s, "@"); at >= 0 {
		node = s[:at]
		s = s[at+1:]
	}
	if slash := strings.Index(s, "/"); slash >= 0 {
		domain = s[:slash]
		resource = s[slash+1:]
	} else {
		domain = s
	}
	return New(node, domain, resource, checkPrecis)
}

func (j *JID) Node() string     { return j.node }
func (j *JID) Domain() string   { return j.domain }
func (j *JID) Resource() string { return j.resource }

// IsServer reports whether this JID addresses a bare domain with no node.
func (j *JID) IsServer() bool { return j.node == "" }

// IsBare reports whether the JID has no resource part.
func (j *JID) IsBare() bool { return j.resource == "" }

// IsFull reports whether the JID carries a resource part.
func (j *JID) IsFull() bool { return j.resource != "" }

// ToBareJID returns a copy of j with the resource part stripped.
func (j *JID) ToBareJID() *JID {
	return &JID{node: j.node, domain: j.domain}
}

// String renders the JID in node@domain/resource form.
func (j *JID) String() string {
	var b strings.Builder
	if j.node != "" {
		b.WriteString(j.node)
		b.WriteByte('@')
	}
	b.WriteString(j.domain)
	if j.resource != "" {
		b.WriteByte('/')
		b.WriteString(j.resource)
	}
	return b.String()
}

// Matches reports whether j and j2 agree on the parts selected by opts.
func (j *JID) Matches(j2 *JID, opts MatchingOptions) bool {
	if opts&MatchesNode != 0 && j.node != j2.node {
		return false
	}
	if opts&MatchesDomain != 0 && j.domain != j2.domain {
		return false
	}
	if opts&MatchesResource != 0 && j.resource != j2.resource {
		return false
	}
	return true
}
