package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/mech/pkg/mechmodels"
)

func TestRelayWithInactivityTimeoutPassesThroughEvents(t *testing.T) {
	upstream := make(chan mechmodels.Event, 2)
	upstream <- mechmodels.Event{Type: mechmodels.EventMessageDelta, Content: "hi"}
	close(upstream)

	canceled := false
	out := relayWithInactivityTimeout(upstream, func() { canceled = true }, time.Second)

	var got []mechmodels.Event
	for e := range out {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Content)
	assert.True(t, canceled)
}

func TestRelayWithInactivityTimeoutFiresOnSilence(t *testing.T) {
	upstream := make(chan mechmodels.Event)
	canceled := false
	out := relayWithInactivityTimeout(upstream, func() { canceled = true }, 20*time.Millisecond)

	var got []mechmodels.Event
	for e := range out {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.Equal(t, mechmodels.EventError, got[0].Type)
	assert.True(t, canceled)
}

func TestRelayWithInactivityTimeoutResetsOnActivity(t *testing.T) {
	upstream := make(chan mechmodels.Event, 3)
	out := relayWithInactivityTimeout(upstream, func() {}, 30*time.Millisecond)

	upstream <- mechmodels.Event{Type: mechmodels.EventMessageDelta, Content: "1"}
	time.Sleep(15 * time.Millisecond)
	upstream <- mechmodels.Event{Type: mechmodels.EventMessageDelta, Content: "2"}
	time.Sleep(15 * time.Millisecond)
	close(upstream)

	var got []mechmodels.Event
	for e := range out {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Content)
	assert.Equal(t, "2", got[1].Content)
}
