package pubsub

import "github.com/xmppfed/fedcore/pubsub/model"

// Plugin is a node-type's capability table, spec §6 "plugins" /
// Design Note "Plugin polymorphism": rather than subclassing a generic node
// type, each plugin is a small value describing which XEP-0060 features it
// supports and how it derives default node options.
type Plugin interface {
	// Name is the plugin identifier stored in model.Node.Type and listed
	// in the process "plugins" config key.
	Name() string

	// Supports reports whether this plugin implements the named
	// XEP-0060 feature (e.g. "instant-nodes", "auto-create",
	// "multi-subscribe", "subscribe", "publish", "persistent-items",
	// "delete-items", "delete-nodes", "purge-nodes",
	// "subscription-options").
	Supports(feature string) bool

	// DefaultOptions returns this plugin's node-option defaults layered
	// over the process-wide ones.
	DefaultOptions(processDefaults model.Options) model.Options
}

var commonFeatures = map[string]bool{
	"create-nodes":          true,
	"delete-nodes":          true,
	"purge-nodes":           true,
	"publish":               true,
	"subscribe":             true,
	"retrieve-items":        true,
	"persistent-items":      true,
	"delete-items":          true,
	"retract-items":         true,
	"config-node":           true,
	"retrieve-default":      true,
	"modify-affiliations":   true,
	"manage-subscriptions":  true,
	"subscription-options":  true,
}

// FlatPlugin is the standard flat node tree: node paths are independent,
// not nested under a collection by default.
type FlatPlugin struct{}

func (FlatPlugin) Name() string { return "flat" }

func (FlatPlugin) Supports(feature string) bool {
	if feature == "instant-nodes" || feature == "auto-create" {
		return true
	}
	return commonFeatures[feature]
}

func (FlatPlugin) DefaultOptions(d model.Options) model.Options { return d }

// HometreePlugin is the collection-capable variant: it supports collection
// nodes, supports neither instant nodes nor auto-create, and keeps the base
// default options. Node paths are used as the caller gives them; no
// /home/<domain>/<user> prefix is added.
type HometreePlugin struct{}

func (HometreePlugin) Name() string { return "hometree" }

func (HometreePlugin) Supports(feature string) bool {
	if feature == "collections" {
		return true
	}
	if feature == "instant-nodes" || feature == "auto-create" {
		return false
	}
	return commonFeatures[feature]
}

func (HometreePlugin) DefaultOptions(d model.Options) model.Options { return d }

// PEPPlugin backs Personal Eventing Protocol nodes: Host is a bare JID,
// nodes auto-create on first publish, and access defaults to presence.
type PEPPlugin struct{}

func (PEPPlugin) Name() string { return "pep" }

func (PEPPlugin) Supports(feature string) bool {
	switch feature {
	case "auto-create", "filtered-notifications", "presence-notifications":
		return true
	case "instant-nodes":
		return false
	default:
		return commonFeatures[feature]
	}
}

func (PEPPlugin) DefaultOptions(d model.Options) model.Options {
	out := d
	out.AccessModel = model.AccessPresence
	out.MaxItems = 1
	out.PersistItems = true
	out.NotificationType = "headline"
	return out
}

// PluginFor resolves a plugin by name from the configured set, spec §6
// "plugins" (config.PubSub.Plugins).
func PluginFor(name string) (Plugin, bool) {
	switch name {
	case "flat":
		return FlatPlugin{}, true
	case "hometree":
		return HometreePlugin{}, true
	case "pep":
		return PEPPlugin{}, true
	default:
		return nil, false
	}
}
