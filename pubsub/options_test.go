package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmppfed/fedcore/pubsub/model"
	"github.com/xmppfed/fedcore/xmpp"
)

func formField(varName string, values ...string) xmpp.XElement {
	f := xmpp.NewElementName("field")
	f.SetAttribute("var", "pubsub#"+varName)
	for _, v := range values {
		val := xmpp.NewElementName("value")
		val.SetText(v)
		f.AppendElement(val)
	}
	return f
}

func testForm(fields ...xmpp.XElement) xmpp.XElement {
	x := xmpp.NewElementNamespace("x", "jabber:x:data")
	x.SetAttribute("type", "submit")
	x.AppendElements(fields...)
	return x
}

// TestParseConfigFormOverridesOnlyPresentFields covers spec §4.5
// "configure_node... unknown fields are ignored": a form naming one field
// leaves every other default untouched.
func TestParseConfigFormOverridesOnlyPresentFields(t *testing.T) {
	defaults := model.DefaultOptions(10)
	form := testForm(formField("max_items", "5"))

	out, err := ParseConfigForm(form, defaults)
	require.NoError(t, err)
	require.Equal(t, 5, out.MaxItems)
	require.Equal(t, defaults.AccessModel, out.AccessModel)
	require.Equal(t, defaults.PersistItems, out.PersistItems)
}

// TestParseConfigFormNilFormReturnsDefaults covers the "no form submitted"
// branch, e.g. instant-node creation with no configuration.
func TestParseConfigFormNilFormReturnsDefaults(t *testing.T) {
	defaults := model.DefaultOptions(10)
	out, err := ParseConfigForm(nil, defaults)
	require.NoError(t, err)
	require.Equal(t, defaults, out)
}

// TestParseConfigFormRejectsInvalidAccessModel covers the not-acceptable
// error path for an unrecognized access_model value, spec §7.
func TestParseConfigFormRejectsInvalidAccessModel(t *testing.T) {
	defaults := model.DefaultOptions(10)
	form := testForm(formField("access_model", "bogus"))

	_, err := ParseConfigForm(form, defaults)
	require.Error(t, err)
	var nae *ErrNotAcceptable
	require.ErrorAs(t, err, &nae)
	require.Equal(t, "access_model", nae.Field)
}

// TestParseConfigFormRejectsNegativeMaxItems covers the not-acceptable
// error path for a negative max_items value.
func TestParseConfigFormRejectsNegativeMaxItems(t *testing.T) {
	defaults := model.DefaultOptions(10)
	form := testForm(formField("max_items", "-1"))

	_, err := ParseConfigForm(form, defaults)
	require.Error(t, err)
}

// TestParseConfigFormBooleanFields covers the "1"/"true" truthy convention
// for XEP-0004 boolean fields.
func TestParseConfigFormBooleanFields(t *testing.T) {
	defaults := model.DefaultOptions(10)
	form := testForm(
		formField("deliver_payloads", "0"),
		formField("notify_config", "true"),
		formField("notify_sub", "1"),
	)

	out, err := ParseConfigForm(form, defaults)
	require.NoError(t, err)
	require.False(t, out.DeliverPayloads)
	require.True(t, out.NotifyConfig)
	require.True(t, out.NotifySub)
}

// TestParseConfigFormCollectionList covers the multi-value collection field
// (list of node paths).
func TestParseConfigFormCollectionList(t *testing.T) {
	defaults := model.DefaultOptions(10)
	form := testForm(formField("collection", "a", "b"))

	out, err := ParseConfigForm(form, defaults)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, out.Collection)
}

// TestBuildConfigFormRoundTripsThroughParse ensures a form built from a set
// of options, when parsed back, reproduces the same values.
func TestBuildConfigFormRoundTripsThroughParse(t *testing.T) {
	opts := model.DefaultOptions(42)
	opts.AccessModel = model.AccessWhitelist
	opts.NotificationType = "normal"
	opts.MaxPayloadSize = 1024

	form := BuildConfigForm(opts)
	form.SetAttribute("type", "submit")

	out, err := ParseConfigForm(form, model.DefaultOptions(10))
	require.NoError(t, err)
	require.Equal(t, opts.AccessModel, out.AccessModel)
	require.Equal(t, opts.NotificationType, out.NotificationType)
	require.Equal(t, opts.MaxPayloadSize, out.MaxPayloadSize)
	require.Equal(t, 42, out.MaxItems)
}
