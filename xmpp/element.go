// Package xmpp provides an in-memory XML element tree (Element/XElement),
// the stanza wrapper types built on top of it (IQ, Message, Presence), and
// the stanza-error constructors used across the S2S and Pub/Sub packages.
//
// This mirrors github.com/ortuman/jackal/xmpp's own element tree rather than
// handing raw encoding/xml tokens to callers — every module in the pack that
// imports "github.com/ortuman/jackal/xmpp" builds and inspects stanzas this
// way (xmpp.NewElementName, el.SetAttribute, el.AppendElement, ...).
package xmpp

import (
	"fmt"
	"strings"
)

// XElement is the read interface implemented by Element and every stanza
// wrapper built on top of it.
type XElement interface {
	Name() string
	Namespace() string
	Attributes() AttributeSet
	Elements() ElementSet
	Text() string
	String() string
}

// MutableElement is the mutation surface used while building a stanza.
type MutableElement interface {
	XElement
	SetName(string)
	SetNamespace(string)
	SetAttribute(key, value string)
	SetText(string)
	AppendElement(XElement)
	AppendElements(...XElement)
}

// Attribute is a single XML attribute.
type Attribute struct {
	Label string
	Value string
}

// AttributeSet is a read/lookup view over an element's attributes.
type AttributeSet []Attribute

// Get returns the value for key, or "" if absent.
func (s AttributeSet) Get(key string) string {
	for _, a := range s {
		if a.Label == key {
			return a.Value
		}
	}
	return ""
}

// Has reports whether key is present.
func (s AttributeSet) Has(key string) bool {
	for _, a := range s {
		if a.Label == key {
			return true
		}
	}
	return false
}

// ElementSet is the child-element view of an Element.
type ElementSet []XElement

// Child returns the first child with the given local name, regardless of
// namespace, or nil.
func (s ElementSet) Child(name string) XElement {
	for _, e := range s {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

// ChildNamespace returns the first child matching both name and namespace.
func (s ElementSet) ChildNamespace(name, namespace string) XElement {
	for _, e := range s {
		if e.Name() == name && e.Namespace() == namespace {
			return e
		}
	}
	return nil
}

// ChildrenNamespace returns every child matching namespace (any name if
// name == "").
func (s ElementSet) ChildrenNamespace(name, namespace string) []XElement {
	var out []XElement
	for _, e := range s {
		if e.Namespace() != namespace {
			continue
		}
		if name != "" && e.Name() != name {
			continue
		}
		out = append(out, e)
	}
	return out
}

// All returns every child element.
func (s ElementSet) All() []XElement { return s }

// Count returns the number of child elements.
func (s ElementSet) Count() int { return len(s) }

// Element is the concrete, mutable XML element implementation used to build
// and inspect every stanza and sub-element in this tree.
type Element struct {
	name      string
	namespace string
	attrs     []Attribute
	elements  []XElement
	text      string
}

// NewElementName returns an empty element with the given local name.
func NewElementName(name string) *Element {
	return &Element{name: name}
}

// NewElementNamespace returns an empty element with the given local name and
// default-namespace declaration.
func NewElementNamespace(name, namespace string) *Element {
	return &Element{name: name, namespace: namespace}
}

// NewElementFromElement returns a detached deep copy of e with a new
// identity; callers typically reuse this when reframing a stanza onto a new
// from/to pair (e.g. a retracted message bounced back to the sender).
func NewElementFromElement(e XElement) *Element {
	cp := &Element{
		name:      e.Name(),
		namespace: e.Namespace(),
		text:      e.Text(),
	}
	cp.attrs = append(cp.attrs, []Attribute(e.Attributes())...)
	for _, c := range e.Elements().All() {
		cp.elements = append(cp.elements, NewElementFromElement(c))
	}
	return cp
}

func (e *Element) Name() string      { return e.name }
func (e *Element) Namespace() string { return e.namespace }
func (e *Element) Text() string      { return e.text }

func (e *Element) Attributes() AttributeSet { return AttributeSet(e.attrs) }
func (e *Element) Elements() ElementSet     { return ElementSet(e.elements) }

func (e *Element) SetName(name string)           { e.name = name }
func (e *Element) SetNamespace(namespace string) { e.namespace = namespace }
func (e *Element) SetText(text string)           { e.text = text }

// SetAttribute sets (replacing any existing value) the attribute named key.
func (e *Element) SetAttribute(key, value string) {
	for i, a := range e.attrs {
		if a.Label == key {
			e.attrs[i].Value = value
			return
		}
	}
	e.attrs = append(e.attrs, Attribute{Label: key, Value: value})
}

// Attribute returns a single attribute value, or "" if unset.
func (e *Element) Attribute(key string) string { return e.Attributes().Get(key) }

// AppendElement appends a single child.
func (e *Element) AppendElement(child XElement) { e.elements = append(e.elements, child) }

// AppendElements appends every element in children.
func (e *Element) AppendElements(children ...XElement) {
	e.elements = append(e.elements, children...)
}

// String renders the element as XML text.
func (e *Element) String() string {
	var b strings.Builder
	e.toXML(&b)
	return b.String()
}

func (e *Element) toXML(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteString(e.name)
	if e.namespace != "" {
		fmt.Fprintf(b, ` xmlns="%s"`, escapeAttr(e.namespace))
	}
	for _, a := range e.attrs {
		fmt.Fprintf(b, ` %s="%s"`, a.Label, escapeAttr(a.Value))
	}
	if e.text == "" && len(e.elements) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	if e.text != "" {
		b.WriteString(escapeText(e.text))
	}
	for _, c := range e.elements {
		if el, ok := c.(*Element); ok {
			el.toXML(b)
		} else {
			b.WriteString(c.String())
		}
	}
	b.WriteString("</")
	b.WriteString(e.name)
	b.WriteByte('>')
}

func escapeAttr(s string) string {
	r := strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")
	return r.Replace(s)
}

func escapeText(s string) string {
	r := strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;")
	return r.Replace(s)
}
