package events_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/raphaelgruber/leadwatch/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestDispatchPreservesArrivalOrder(t *testing.T) {
	d := events.NewDispatcher(testLogger(&bytes.Buffer{}))

	var got []events.Kind
	d.Register("monitor", func(ev events.Event) { got = append(got, ev.Kind()) })

	frames := []string{
		`{"type":"job_started","payload":{"queries":2}}`,
		`{"type":"lead","payload":{"lead":{"domain":"a.nl"}}}`,
		`{"type":"lead","payload":{"lead":{"domain":"a.nl"}}}`,
		`{"type":"job_done","payload":{}}`,
	}
	for _, f := range frames {
		d.HandleFrame([]byte(f))
	}

	assert.Equal(t, []events.Kind{
		events.KindJobStarted,
		events.KindRecordFound,
		events.KindRecordFound,
		events.KindJobCompleted,
	}, got, "duplicates are delivered as-is")
}

func TestDispatchDropsMalformedAndIgnored(t *testing.T) {
	var logs bytes.Buffer
	d := events.NewDispatcher(testLogger(&logs))

	calls := 0
	d.Register("monitor", func(events.Event) { calls++ })

	d.HandleFrame([]byte(`not json`))
	d.HandleFrame([]byte(`{"type":"mystery"}`))
	d.HandleFrame([]byte(`{"type":"log","payload":{"message":"ok"}}`))

	assert.Equal(t, 1, calls)
	assert.Contains(t, logs.String(), "dropping frame")
}

func TestRegisterReplacesSameContext(t *testing.T) {
	d := events.NewDispatcher(nil)

	var first, second int
	unregisterFirst := d.Register("sessions", func(events.Event) { first++ })
	d.Register("sessions", func(events.Event) { second++ })
	d.Register("monitor", func(events.Event) {})

	d.Dispatch(events.JobStarted{})
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, []string{"sessions", "monitor"}, d.Listeners())

	unregisterFirst()
	assert.Equal(t, []string{"sessions", "monitor"}, d.Listeners(), "stale unregister is a no-op")
}

func TestUnregister(t *testing.T) {
	d := events.NewDispatcher(nil)
	calls := 0
	unregister := d.Register("monitor", func(events.Event) { calls++ })

	d.Dispatch(events.JobStarted{})
	unregister()
	d.Dispatch(events.JobStarted{})

	assert.Equal(t, 1, calls)
	assert.Empty(t, d.Listeners())
}

func TestDispatchRecoversListenerPanic(t *testing.T) {
	var logs bytes.Buffer
	d := events.NewDispatcher(testLogger(&logs))

	reached := false
	d.Register("broken", func(events.Event) { panic("boom") })
	d.Register("monitor", func(events.Event) { reached = true })

	require.NotPanics(t, func() { d.Dispatch(events.JobStarted{}) })
	assert.True(t, reached, "later listeners still run")
	assert.Contains(t, logs.String(), "event listener panicked")
}
