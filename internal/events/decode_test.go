package events_test

import (
	"testing"

	"github.com/raphaelgruber/leadwatch/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKnownTypes(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  events.Kind
	}{
		{"status", `{"type":"status","payload":{"authenticated":true}}`, events.KindStatus},
		{"lead", `{"type":"lead","payload":{"lead":{"domain":"a.nl"}}}`, events.KindRecordFound},
		{"leads", `{"type":"leads","payload":{"leads":[{"domain":"a.nl"}]}}`, events.KindRecordsFound},
		{"log", `{"type":"log","payload":{"level":"warn","message":"slow"}}`, events.KindLog},
		{"search progress", `{"type":"search_progress","payload":{"resultsFound":8}}`, events.KindSearchAttempt},
		{"progress", `{"type":"progress","payload":{"domain":"a.nl"}}`, events.KindProgress},
		{"job started", `{"type":"job_started","payload":{"queries":5}}`, events.KindJobStarted},
		{"job done", `{"type":"job_done","payload":{"finalStatus":"stopped"}}`, events.KindJobCompleted},
		{"job error", `{"type":"job_error","payload":{"error":"boom"}}`, events.KindJobFailed},
		{"query start", `{"type":"query_start","payload":{"sector":"logistiek"}}`, events.KindUnitStarted},
		{"domains found", `{"type":"domains_found","payload":{"count":12}}`, events.KindUnitsDiscovered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := events.Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Kind())
		})
	}
}

func TestDecodePayloadFields(t *testing.T) {
	ev, err := events.Decode([]byte(`{"type":"job_started","payload":{"queries":5,"workspaceId":"w1"}}`))
	require.NoError(t, err)
	started, ok := ev.(events.JobStarted)
	require.True(t, ok, "expected JobStarted, got %T", ev)
	require.NotNil(t, started.Queries)
	assert.Equal(t, 5, *started.Queries)
	assert.Equal(t, "w1", started.WorkspaceID)

	ev, err = events.Decode([]byte(`{"type":"lead","payload":{"lead":{"domain":"A.nl","company_name":"A"}}}`))
	require.NoError(t, err)
	found := ev.(events.RecordFound)
	assert.Equal(t, "a.nl", found.Lead.Key())
	assert.Equal(t, "A", found.Lead.CompanyName)
}

func TestDecodeWithoutPayloadUsesEnvelope(t *testing.T) {
	ev, err := events.Decode([]byte(`{"type":"log","level":"error","message":"blocked"}`))
	require.NoError(t, err)

	msg := ev.(events.LogMessage)
	assert.Equal(t, "error", msg.Level)
	assert.Equal(t, "blocked", msg.Message)
}

func TestDecodeBareLeadPayloads(t *testing.T) {
	ev, err := events.Decode([]byte(`{"type":"lead","payload":{"domain":"b.nl"}}`))
	require.NoError(t, err)
	assert.Equal(t, "b.nl", ev.(events.RecordFound).Lead.Key())

	ev, err = events.Decode([]byte(`{"type":"leads","payload":[{"domain":"a.nl"},{"domain":"b.nl"}]}`))
	require.NoError(t, err)
	assert.Len(t, ev.(events.RecordsFound).Leads, 2)
	assert.Empty(t, ev.(events.RecordsFound).WorkspaceID)
}

func TestDecodeLeadBatchWorkspace(t *testing.T) {
	ev, err := events.Decode([]byte(`{"type":"leads","payload":{"workspaceId":"w2","leads":[{"domain":"a.nl"}]}}`))
	require.NoError(t, err)

	batch := ev.(events.RecordsFound)
	assert.Equal(t, "w2", batch.WorkspaceID)
	require.Len(t, batch.Leads, 1)
	assert.Equal(t, "a.nl", batch.Leads[0].Key())
}

func TestDecodeUnknownTypeIsIgnored(t *testing.T) {
	ev, err := events.Decode([]byte(`{"type":"refresh_logs","payload":{}}`))
	require.NoError(t, err)

	ig, ok := ev.(events.Ignored)
	require.True(t, ok)
	assert.Equal(t, "refresh_logs", ig.Tag)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `hello`},
		{"truncated", `{"type":"lead",`},
		{"missing type", `{"payload":{}}`},
		{"array envelope", `[1,2]`},
		{"payload wrong shape", `{"type":"domains_found","payload":{"count":"many"}}`},
		{"payload is string", `{"type":"job_started","payload":"now"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := events.Decode([]byte(tt.frame))
			assert.ErrorIs(t, err, events.ErrMalformed)
			assert.Nil(t, ev)
		})
	}
}

func TestCounterPrecedence(t *testing.T) {
	ev, err := events.Decode([]byte(`{"type":"job_done","payload":{"counters":{"leadsFound":40},"leadsFound":42}}`))
	require.NoError(t, err)
	n, ok := ev.(events.JobCompleted).Leads()
	assert.True(t, ok)
	assert.Equal(t, 40, n, "nested counters win over top-level fields")

	ev, err = events.Decode([]byte(`{"type":"job_done","payload":{"leadsFound":42}}`))
	require.NoError(t, err)
	n, ok = ev.(events.JobCompleted).Leads()
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	ev, err = events.Decode([]byte(`{"type":"job_done","payload":{}}`))
	require.NoError(t, err)
	_, ok = ev.(events.JobCompleted).Leads()
	assert.False(t, ok)
}

func TestStatusRejected(t *testing.T) {
	ev, err := events.Decode([]byte(`{"type":"status","payload":{"authenticated":false,"error":"invalid token"}}`))
	require.NoError(t, err)
	assert.True(t, ev.(events.Status).Rejected())

	ev, err = events.Decode([]byte(`{"type":"status","payload":{"running":true}}`))
	require.NoError(t, err)
	assert.False(t, ev.(events.Status).Rejected(), "absent flag is not a rejection")
}
