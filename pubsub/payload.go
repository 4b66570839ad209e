package pubsub

import (
	"encoding/xml"
	"strings"

	"github.com/xmppfed/fedcore/xmpp"
)

// serializePayload concatenates a published item's payload elements into the
// bytes model.Item.Payload persists, spec §4.5 "publish_item... stores the
// item's payload." Re-parsing on read keeps the storage.Repository
// interface free of any xmpp.XElement dependency.
func serializePayload(payload []xmpp.XElement) []byte {
	if len(payload) == 0 {
		return nil
	}
	var b strings.Builder
	for _, el := range payload {
		b.WriteString(el.String())
	}
	return []byte(b.String())
}

// parsePayload is the inverse of serializePayload, used when re-delivering a
// persisted item (send-last-published-item), grounded on
// internal/wire's own token-by-token element builder.
func parsePayload(raw []byte) []xmpp.XElement {
	if len(raw) == 0 {
		return nil
	}
	d := xml.NewDecoder(strings.NewReader(string(raw)))
	var out []xmpp.XElement
	var cur *xmpp.Element
	var stack []*xmpp.Element
	for {
		tok, err := d.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
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
			if len(stack) == 0 {
				if cur != nil {
					out = append(out, cur)
				}
				cur = nil
				continue
			}
			cur = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		}
	}
	return out
}
