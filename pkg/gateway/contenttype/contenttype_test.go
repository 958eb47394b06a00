package contenttype

import (
	"testing"

	"github.com/cuemby/fabrik/pkg/rib"
	"github.com/stretchr/testify/require"
)

func TestNegotiateRouteContentTypeWins(t *testing.T) {
	require.Equal(t, "text/plain", Negotiate("text/plain", "application/json"))
}

func TestNegotiatePicksHighestPriorityAcceptMatch(t *testing.T) {
	require.Equal(t, "application/json", Negotiate("", "text/plain, application/json"))
}

func TestNegotiateDefaultsToJSON(t *testing.T) {
	require.Equal(t, "application/json", Negotiate("", ""))
	require.Equal(t, "application/json", Negotiate("", "application/weird"))
}

func TestMapScalarAsJSON(t *testing.T) {
	m, err := Map(rib.String("hi"), "application/json")
	require.NoError(t, err)
	require.Equal(t, `"hi"`, string(m.Body))
}

func TestMapScalarAsPlainText(t *testing.T) {
	m, err := Map(rib.Number(42), "text/plain")
	require.NoError(t, err)
	require.Equal(t, "42", string(m.Body))
}

func TestMapByteListAsOctetStream(t *testing.T) {
	v := rib.List(rib.Number(104), rib.Number(105))
	m, err := Map(v, "application/octet-stream")
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), m.Body)
}

func TestMapRecordRejectsNonJSON(t *testing.T) {
	v := rib.Record(map[string]rib.Value{"a": rib.Number(1)})
	_, err := Map(v, "text/plain")
	require.Error(t, err)
	var illegal *IllegalMapping
	require.ErrorAs(t, err, &illegal)
}

func TestMapRecordAsJSON(t *testing.T) {
	v := rib.Record(map[string]rib.Value{"a": rib.Number(1)})
	m, err := Map(v, "application/json")
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(m.Body))
}

func TestMapNoneOptionAsJSONNull(t *testing.T) {
	m, err := Map(rib.Null(), "application/json")
	require.NoError(t, err)
	require.Equal(t, "null", string(m.Body))
}

func TestMapNoneOptionRejectsNonJSON(t *testing.T) {
	_, err := Map(rib.Null(), "text/plain")
	require.Error(t, err)
}
