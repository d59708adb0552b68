package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/mech/internal/mechagent"
	"github.com/haasonsaas/mech/internal/mech/provider"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// fakeProvider streams a scripted sequence of events, or fails to open a
// stream at all, to exercise the runner's fallback walk deterministically.
type fakeProvider struct {
	name        string
	models      []string
	supportsToo bool
	openErr     error
	events      []mechmodels.Event
}

func (f *fakeProvider) Name() string                    { return f.name }
func (f *fakeProvider) Models() []string                { return f.models }
func (f *fakeProvider) SupportsTools(model string) bool { return f.supportsToo }
func (f *fakeProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan mechmodels.Event, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	out := make(chan mechmodels.Event, len(f.events))
	for _, e := range f.events {
		out <- e
	}
	close(out)
	return out, nil
}

func TestRunStreamedRelaysSuccessfulEvents(t *testing.T) {
	p := &fakeProvider{
		name:   "fake",
		models: []string{"fake-model"},
		events: []mechmodels.Event{
			{Type: mechmodels.EventMessageDelta, Content: "hello"},
			{Type: mechmodels.EventMessageComplete, Content: "hello"},
		},
	}
	r := &Runner{
		Registry: provider.NewRegistry(p),
		Classes:  ClassTable{"standard": {{ID: "fake-model"}}},
	}
	agent := &mechagent.Agent{ModelClass: "standard"}

	var got []mechmodels.Event
	for e := range r.RunStreamed(context.Background(), agent, "hi", nil) {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "fake-model", got[0].Model)
	assert.Equal(t, "hello", got[1].Content)
}

func TestRunStreamedFallsBackWhenOpenErrors(t *testing.T) {
	broken := &fakeProvider{name: "broken", models: []string{"a"}, openErr: assertErr("boom")}
	healthy := &fakeProvider{name: "healthy", models: []string{"b"}, events: []mechmodels.Event{
		{Type: mechmodels.EventMessageComplete, Content: "ok"},
	}}
	r := &Runner{
		Registry: provider.NewRegistry(broken, healthy),
		Classes:  ClassTable{"standard": {{ID: "a"}, {ID: "b"}}},
	}
	agent := &mechagent.Agent{ModelClass: "standard", PinnedModel: strPtr("a")}

	var got []mechmodels.Event
	for e := range r.RunStreamed(context.Background(), agent, "hi", nil) {
		got = append(got, e)
	}
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, "ok", last.Content)
	assert.Equal(t, "b", last.Model)
}

func TestRunStreamedReportsNoModelAvailable(t *testing.T) {
	r := &Runner{Registry: provider.NewRegistry(), Classes: ClassTable{}}
	agent := &mechagent.Agent{ModelClass: "standard"}

	var got []mechmodels.Event
	for e := range r.RunStreamed(context.Background(), agent, "hi", nil) {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.Equal(t, mechmodels.EventError, got[0].Type)
}

func TestRunStreamedNotifiesOnFallback(t *testing.T) {
	broken := &fakeProvider{name: "broken", models: []string{"a"}, openErr: assertErr("boom")}
	healthy := &fakeProvider{name: "healthy", models: []string{"b"}, events: []mechmodels.Event{
		{Type: mechmodels.EventMessageComplete, Content: "ok"},
	}}
	var from, to, reason string
	r := &Runner{
		Registry:   provider.NewRegistry(broken, healthy),
		Classes:    ClassTable{"standard": {{ID: "a"}, {ID: "b"}}},
		OnFallback: func(f, t, reasonArg string) { from, to, reason = f, t, reasonArg },
	}
	agent := &mechagent.Agent{ModelClass: "standard", PinnedModel: strPtr("a")}

	for range r.RunStreamed(context.Background(), agent, "hi", nil) {
	}
	assert.Equal(t, "a", from)
	assert.Equal(t, "b", to)
	assert.NotEmpty(t, reason)
}

func strPtr(s string) *string { return &s }

type assertErrType string

func (e assertErrType) Error() string { return string(e) }

func assertErr(msg string) error { return assertErrType(msg) }
