package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_WireFormatCarriesIDs(t *testing.T) {
	ev := Added(Ref("web"), Ref("host"), "docker")
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"added","target":"web","parent":"host","contributor":"docker"}`, string(data))

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ev, back)

	data, err = json.Marshal(Reset("docker"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"reset","contributor":"docker"}`, string(data))
}

func TestEvent_RejectsUnknownKind(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte(`{"kind":"exploded","contributor":"x"}`), &ev)
	assert.ErrorContains(t, err, "exploded")
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "removed(web, docker)", Removed(Ref("web"), "docker").String())
	assert.Equal(t, "reset(docker)", Reset("docker").String())
}

func TestProviderError_Unwraps(t *testing.T) {
	cause := assert.AnError
	err := error(&ProviderError{Contributor: "docker", Op: "services", Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "contributor docker: services: "+cause.Error(), err.Error())
}
