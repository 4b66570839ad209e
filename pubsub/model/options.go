package model

// Options is a node's configuration, spec §6 "Node option keys." Field
// names track the XEP-0060 form vars with the "pubsub#" prefix stripped.
type Options struct {
	DeliverPayloads       bool
	DeliverNotifications  bool
	NotifyConfig          bool
	NotifyDelete          bool
	NotifyRetract         bool
	NotifySub             bool
	PersistItems          bool
	MaxItems              int
	Subscribe             bool
	AccessModel           AccessModel
	RosterGroupsAllowed   []string
	PublishModel          PublishModel
	PurgeOffline          bool
	NotificationType      string // "headline" or "normal"
	MaxPayloadSize        int
	SendLastPublishedItem SendLastPublishedItem
	PresenceBasedDelivery bool
	Collection            []string
	Type                  string
	Title                 string
	BodyXSLT              string
}

// DefaultOptions returns the process defaults a freshly created node
// inherits before any submitted config form is merged in, spec §4.5
// "merged over plugin defaults." maxItemsNode is config.PubSub.MaxItemsNode.
func DefaultOptions(maxItemsNode int) Options {
	return Options{
		DeliverPayloads:       true,
		DeliverNotifications:  true,
		NotifyConfig:          false,
		NotifyDelete:          true,
		NotifyRetract:         false,
		NotifySub:             false,
		PersistItems:          true,
		MaxItems:              maxItemsNode,
		Subscribe:             true,
		AccessModel:           AccessOpen,
		PublishModel:          PublishPublishers,
		PurgeOffline:          false,
		NotificationType:      "headline",
		MaxPayloadSize:        60000,
		SendLastPublishedItem: SendLastNever,
		PresenceBasedDelivery: false,
	}
}

// Merge returns a copy of defaults with every field o explicitly set
// (non-zero, for the bool/string/slice fields a submitted form always sets)
// overriding the corresponding default field. Since Go's zero value can't
// distinguish "field present and false" from "field absent", callers build o
// from a form via ParseConfigForm (which starts from defaults), then pass the
// result here only when merging two already-resolved Options (e.g.
// instant-node creation reusing a template); the common create_node path
// just calls ParseConfigForm directly.
func (o Options) Merge(defaults Options) Options {
	out := defaults
	out.DeliverPayloads = o.DeliverPayloads
	out.DeliverNotifications = o.DeliverNotifications
	out.NotifyConfig = o.NotifyConfig
	out.NotifyDelete = o.NotifyDelete
	out.NotifyRetract = o.NotifyRetract
	out.NotifySub = o.NotifySub
	out.PersistItems = o.PersistItems
	if o.MaxItems != 0 {
		out.MaxItems = o.MaxItems
	}
	out.Subscribe = o.Subscribe
	if o.AccessModel != "" {
		out.AccessModel = o.AccessModel
	}
	if len(o.RosterGroupsAllowed) > 0 {
		out.RosterGroupsAllowed = o.RosterGroupsAllowed
	}
	if o.PublishModel != "" {
		out.PublishModel = o.PublishModel
	}
	out.PurgeOffline = o.PurgeOffline
	if o.NotificationType != "" {
		out.NotificationType = o.NotificationType
	}
	if o.MaxPayloadSize != 0 {
		out.MaxPayloadSize = o.MaxPayloadSize
	}
	if o.SendLastPublishedItem != "" {
		out.SendLastPublishedItem = o.SendLastPublishedItem
	}
	out.PresenceBasedDelivery = o.PresenceBasedDelivery
	if len(o.Collection) > 0 {
		out.Collection = o.Collection
	}
	if o.Type != "" {
		out.Type = o.Type
	}
	if o.Title != "" {
		out.Title = o.Title
	}
	if o.BodyXSLT != "" {
		out.BodyXSLT = o.BodyXSLT
	}
	return out
}
