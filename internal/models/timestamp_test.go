package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/leadwatch/internal/models"
)

func TestTimestampFormats(t *testing.T) {
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `"2024-05-01T10:00:00Z"`, want},
		{"rfc3339 offset", `"2024-05-01T12:00:00+02:00"`, want},
		{"rfc3339 millis", `"2024-05-01T10:00:00.000Z"`, want},
		{"sql", `"2024-05-01 10:00:00"`, want},
		{"sql fraction", `"2024-05-01 10:00:00.000"`, want},
		{"sql offset", `"2024-05-01 12:00:00+02:00"`, want},
		{"no zone", `"2024-05-01T10:00:00"`, want},
		{"date", `"2024-05-01"`, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"unix millis", `1714557600000`, want},
		{"unix millis string", `"1714557600000"`, want},
		{"null", `null`, time.Time{}},
		{"empty", `""`, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts models.Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}
}

func TestTimestampRejectsGarbage(t *testing.T) {
	var ts models.Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`true`), &ts))
}

func TestLeadPageWithSQLTimestamps(t *testing.T) {
	var page models.LeadPage
	require.NoError(t, json.Unmarshal([]byte(
		`{"data":[{"domain":"a.nl","created_at":"2024-05-01 10:00:00"},{"domain":"b.nl","created_at":null}],"total":2}`), &page))

	require.Len(t, page.Data, 2)
	require.NotNil(t, page.Data[0].CreatedAt)
	assert.Equal(t, 2024, page.Data[0].CreatedAt.Year())
}

func TestSessionsWithSQLTimestamps(t *testing.T) {
	var sessions []models.ScrapeSession
	require.NoError(t, json.Unmarshal([]byte(
		`[{"id":"s1","status":"done","created_at":"2024-05-01 10:00:00","finished_at":"2024-05-01 10:03:05"}]`), &sessions))

	require.Len(t, sessions, 1)
	assert.Equal(t, 185*time.Second, sessions[0].Duration(time.Now()))
}

func TestTimestampMarshal(t *testing.T) {
	b, err := json.Marshal(models.Timestamp{})
	require.NoError(t, err)
	assert.JSONEq(t, `null`, string(b))

	b, err = json.Marshal(models.NewTimestamp(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-05-01T10:00:00Z"`, string(b))
}
