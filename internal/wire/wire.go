// Package wire is the minimal XML stream codec standing in for the
// standalone XML parser/serializer library the spec calls out as an
// out-of-scope external collaborator (spec §1). No such fetchable module
// exists in this tree's dependency pack, so — exactly as mellium.im/xmpp's
// internal/stream package does — it is built directly on the standard
// library's encoding/xml token reader rather than hand-rolled byte
// scanning.
package wire

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/xmppfed/fedcore/xmpp"
	"github.com/xmppfed/fedcore/xmpp/streamerror"
)

// EventKind identifies the upward-framed event kinds of spec §4.2.
type EventKind int

const (
	EventStreamStart EventKind = iota
	EventElement
	EventStreamEnd
	EventStreamError
	EventClosed
)

// Event is a single framed event delivered to the session's mailbox.
type Event struct {
	Kind    EventKind
	Attrs   map[string]string // populated for EventStreamStart
	Element xmpp.XElement     // populated for EventElement
	Err     *streamerror.StreamError
}

const streamNS = "http://etherx.jabber.org/streams"

// Reader decodes framed stream events from r and delivers them on Events
// until the stream closes or a read error occurs.
type Reader struct {
	d      *xml.Decoder
	Events chan Event
	depth  int
}

// NewReader starts decoding r. The caller must range over Events until it
// is closed.
func NewReader(r io.Reader) *Reader {
	rd := &Reader{
		d:      xml.NewDecoder(bufio.NewReader(r)),
		Events: make(chan Event, 16),
	}
	go rd.loop()
	return rd
}

func (r *Reader) loop() {
	defer close(r.Events)
	var cur *xmpp.Element
	var stack []*xmpp.Element

	for {
		tok, err := r.d.Token()
		if err != nil {
			if err == io.EOF {
				r.Events <- Event{Kind: EventClosed}
				return
			}
			r.Events <- Event{Kind: EventStreamError, Err: streamerror.ErrXMLNotWellFormed}
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "stream" && t.Name.Space == streamNS {
				attrs := map[string]string{}
				for _, a := range t.Attr {
					key := a.Name.Local
					if a.Name.Space != "" {
						key = a.Name.Space + ":" + a.Name.Local
					}
					attrs[key] = a.Value
				}
				r.Events <- Event{Kind: EventStreamStart, Attrs: attrs}
				continue
			}
			el := xmpp.NewElementName(t.Name.Local)
			el.SetNamespace(t.Name.Space)
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				el.SetAttribute(a.Name.Local, a.Value)
			}
			if cur != nil {
				cur.AppendElement(el)
				stack = append(stack, cur)
			}
			cur = el
		case xml.CharData:
			if cur != nil {
				cur.SetText(cur.Text() + string(t))
			}
		case xml.EndElement:
			if t.Name.Local == "stream" && t.Name.Space == streamNS {
				r.Events <- Event{Kind: EventStreamEnd}
				continue
			}
			if cur == nil {
				continue
			}
			if len(stack) == 0 {
				r.Events <- Event{Kind: EventElement, Element: cur}
				cur = nil
				continue
			}
			cur = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		}
	}
}

// OpenStream writes a non-self-closing <stream:stream> opening tag, per
// spec §6's "Wire protocol (S2S outbound)".
func OpenStream(w io.Writer, to, from, id string, useV10 bool, dialback bool) error {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>`)
	b.WriteString(`<stream:stream xmlns:stream="`)
	b.WriteString(streamNS)
	b.WriteString(`" xmlns="jabber:server"`)
	if dialback {
		b.WriteString(` xmlns:db="jabber:server:dialback"`)
	}
	fmt.Fprintf(&b, ` to="%s" from="%s"`, to, from)
	if id != "" {
		fmt.Fprintf(&b, ` id="%s"`, id)
	}
	if useV10 {
		b.WriteString(` version="1.0"`)
	}
	b.WriteByte('>')
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteElement serializes el onto w.
func WriteElement(w io.Writer, el xmpp.XElement) error {
	_, err := io.WriteString(w, el.String())
	return err
}

// CloseStream writes the closing </stream:stream> tag.
func CloseStream(w io.Writer) error {
	_, err := io.WriteString(w, `</stream:stream>`)
	return err
}
