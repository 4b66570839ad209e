package pubsub

import (
	"strconv"
	"strings"

	"github.com/xmppfed/fedcore/pubsub/model"
	"github.com/xmppfed/fedcore/xmpp"
)

// NSNodeConfig is the data-form FORM_TYPE for node configuration, spec §6.
const NSNodeConfig = "http://jabber.org/protocol/pubsub#node_config"

const fieldPrefix = "pubsub#"

// ErrNotAcceptable wraps the offending form field name; the controller
// translates it into a <not-acceptable/> IQ error reply (spec §4.5,
// §7 "client-fault... returned to the requester").
type ErrNotAcceptable struct {
	Field string
}

func (e *ErrNotAcceptable) Error() string {
	return "pubsub: not-acceptable option " + e.Field
}

func notAcceptable(field string) error { return &ErrNotAcceptable{Field: field} }

// ParseConfigForm reads a submitted XEP-0004 <x type="submit"> form into
// Options, starting from defaults and overriding only the fields whose form
// var is present, per spec §4.5 "configure_node... unknown fields are
// ignored."
func ParseConfigForm(form xmpp.XElement, defaults model.Options) (model.Options, error) {
	out := defaults
	if form == nil {
		return out, nil
	}
	vals := collectFields(form)

	if v, ok := vals["deliver_payloads"]; ok {
		out.DeliverPayloads = parseBool(v)
	}
	if v, ok := vals["deliver_notifications"]; ok {
		out.DeliverNotifications = parseBool(v)
	}
	if v, ok := vals["notify_config"]; ok {
		out.NotifyConfig = parseBool(v)
	}
	if v, ok := vals["notify_delete"]; ok {
		out.NotifyDelete = parseBool(v)
	}
	if v, ok := vals["notify_retract"]; ok {
		out.NotifyRetract = parseBool(v)
	}
	if v, ok := vals["notify_sub"]; ok {
		out.NotifySub = parseBool(v)
	}
	if v, ok := vals["persist_items"]; ok {
		out.PersistItems = parseBool(v)
	}
	if v, ok := vals["max_items"]; ok {
		n, err := strconv.Atoi(single(v))
		if err != nil || n < 0 {
			return model.Options{}, notAcceptable("max_items")
		}
		out.MaxItems = n
	}
	if v, ok := vals["subscribe"]; ok {
		out.Subscribe = parseBool(v)
	}
	if v, ok := vals["access_model"]; ok {
		am := model.AccessModel(single(v))
		switch am {
		case model.AccessOpen, model.AccessPresence, model.AccessRoster, model.AccessAuthorize, model.AccessWhitelist:
			out.AccessModel = am
		default:
			return model.Options{}, notAcceptable("access_model")
		}
	}
	if v, ok := vals["roster_groups_allowed"]; ok {
		out.RosterGroupsAllowed = v
	}
	if v, ok := vals["publish_model"]; ok {
		pm := model.PublishModel(single(v))
		switch pm {
		case model.PublishPublishers, model.PublishSubscribers, model.PublishOpen:
			out.PublishModel = pm
		default:
			return model.Options{}, notAcceptable("publish_model")
		}
	}
	if v, ok := vals["purge_offline"]; ok {
		out.PurgeOffline = parseBool(v)
	}
	if v, ok := vals["notification_type"]; ok {
		switch single(v) {
		case "headline", "normal":
			out.NotificationType = single(v)
		default:
			return model.Options{}, notAcceptable("notification_type")
		}
	}
	if v, ok := vals["max_payload_size"]; ok {
		n, err := strconv.Atoi(single(v))
		if err != nil || n < 0 {
			return model.Options{}, notAcceptable("max_payload_size")
		}
		out.MaxPayloadSize = n
	}
	if v, ok := vals["send_last_published_item"]; ok {
		sl := model.SendLastPublishedItem(single(v))
		switch sl {
		case model.SendLastNever, model.SendLastOnSub, model.SendLastOnSubAndPresence:
			out.SendLastPublishedItem = sl
		default:
			return model.Options{}, notAcceptable("send_last_published_item")
		}
	}
	if v, ok := vals["presence_based_delivery"]; ok {
		out.PresenceBasedDelivery = parseBool(v)
	}
	if v, ok := vals["collection"]; ok {
		out.Collection = v
	}
	if v, ok := vals["type"]; ok {
		out.Type = single(v)
	}
	if v, ok := vals["title"]; ok {
		out.Title = single(v)
	}
	if v, ok := vals["body_xslt"]; ok {
		out.BodyXSLT = single(v)
	}
	return out, nil
}

func single(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func parseBool(v []string) bool {
	s := single(v)
	return s == "1" || s == "true"
}

// collectFields reads every <field var="pubsub#x"><value>v</value>...</field>
// under a <x xmlns="jabber:x:data"> form into a var -> values map, stripping
// the "pubsub#" prefix.
func collectFields(form xmpp.XElement) map[string][]string {
	out := map[string][]string{}
	for _, f := range form.Elements().All() {
		if f.Name() != "field" {
			continue
		}
		v := f.Attributes().Get("var")
		if !strings.HasPrefix(v, fieldPrefix) {
			continue
		}
		key := strings.TrimPrefix(v, fieldPrefix)
		var values []string
		for _, val := range f.Elements().All() {
			if val.Name() == "value" {
				values = append(values, val.Text())
			}
		}
		if values != nil {
			out[key] = values
		}
	}
	return out
}

// BuildConfigForm renders opts as a XEP-0004 result form suitable for a
// configure_node IQ reply, spec §4.5/§6.
func BuildConfigForm(opts model.Options) xmpp.XElement {
	x := xmpp.NewElementNamespace("x", "jabber:x:data")
	x.SetAttribute("type", "form")

	formType := xmpp.NewElementName("field")
	formType.SetAttribute("var", "FORM_TYPE")
	formType.SetAttribute("type", "hidden")
	fv := xmpp.NewElementName("value")
	fv.SetText(NSNodeConfig)
	formType.AppendElement(fv)
	x.AppendElement(formType)

	addBool := func(key string, b bool) {
		x.AppendElement(boolField(key, b))
	}
	addBool("deliver_payloads", opts.DeliverPayloads)
	addBool("deliver_notifications", opts.DeliverNotifications)
	addBool("notify_config", opts.NotifyConfig)
	addBool("notify_delete", opts.NotifyDelete)
	addBool("notify_retract", opts.NotifyRetract)
	addBool("notify_sub", opts.NotifySub)
	addBool("persist_items", opts.PersistItems)
	x.AppendElement(textField("max_items", strconv.Itoa(opts.MaxItems)))
	addBool("subscribe", opts.Subscribe)
	x.AppendElement(textField("access_model", string(opts.AccessModel)))
	x.AppendElement(textField("publish_model", string(opts.PublishModel)))
	addBool("purge_offline", opts.PurgeOffline)
	x.AppendElement(textField("notification_type", opts.NotificationType))
	x.AppendElement(textField("max_payload_size", strconv.Itoa(opts.MaxPayloadSize)))
	x.AppendElement(textField("send_last_published_item", string(opts.SendLastPublishedItem)))
	addBool("presence_based_delivery", opts.PresenceBasedDelivery)
	if opts.Type != "" {
		x.AppendElement(textField("type", opts.Type))
	}
	if opts.Title != "" {
		x.AppendElement(textField("title", opts.Title))
	}
	return x
}

func boolField(key string, b bool) xmpp.XElement {
	f := xmpp.NewElementName("field")
	f.SetAttribute("var", fieldPrefix+key)
	v := xmpp.NewElementName("value")
	if b {
		v.SetText("1")
	} else {
		v.SetText("0")
	}
	f.AppendElement(v)
	return f
}

func textField(key, val string) xmpp.XElement {
	f := xmpp.NewElementName("field")
	f.SetAttribute("var", fieldPrefix+key)
	v := xmpp.NewElementName("value")
	v.SetText(val)
	f.AppendElement(v)
	return f
}
