package job_test

import (
	"testing"
	"time"

	"github.com/raphaelgruber/leadwatch/internal/events"
	"github.com/raphaelgruber/leadwatch/internal/job"
	"github.com/raphaelgruber/leadwatch/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTracker() (*job.Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	return job.NewTracker(job.WithClock(clock.Now)), clock
}

func intp(n int) *int { return &n }

func TestTrackerStartsIdle(t *testing.T) {
	tr, _ := newTracker()

	snap := tr.Snapshot()
	assert.Equal(t, job.PhaseIdle, snap.Phase)
	assert.Zero(t, snap.Elapsed)
	assert.False(t, tr.Accepting())
}

func TestJobStartedResetsFromAnyPhase(t *testing.T) {
	prepare := map[string]func(*job.Tracker){
		"idle": func(*job.Tracker) {},
		"running": func(tr *job.Tracker) {
			tr.Apply(events.JobStarted{})
		},
		"stopping": func(tr *job.Tracker) {
			tr.Apply(events.JobStarted{})
			tr.RequestStop()
		},
		"done": func(tr *job.Tracker) {
			tr.Apply(events.JobStarted{})
			tr.Apply(events.JobCompleted{LeadsFound: intp(7)})
		},
		"error": func(tr *job.Tracker) {
			tr.Apply(events.JobStarted{})
			tr.Apply(events.JobFailed{Error: "boom"})
		},
	}

	for name, setup := range prepare {
		t.Run(name, func(t *testing.T) {
			tr, clock := newTracker()
			setup(tr)
			tr.CountRecords(3)
			tr.Apply(events.UnitsDiscovered{Count: 4})

			clock.Advance(time.Minute)
			require.True(t, tr.Apply(events.JobStarted{Queries: intp(5)}))

			snap := tr.Snapshot()
			assert.Equal(t, job.PhaseRunning, snap.Phase)
			assert.Zero(t, snap.LeadsFound)
			assert.Nil(t, snap.TotalDomains)
			require.NotNil(t, snap.TotalQueries)
			assert.Equal(t, 5, *snap.TotalQueries)
			assert.Empty(t, snap.Error)
			assert.Zero(t, snap.Elapsed, "elapsed restarts at receipt")
		})
	}
}

func TestEventsIgnoredOutsideRunningJob(t *testing.T) {
	tr, _ := newTracker()

	assert.False(t, tr.Apply(events.ProgressUpdate{LeadsFound: intp(3)}))
	assert.False(t, tr.Apply(events.JobCompleted{}))
	assert.False(t, tr.Apply(events.JobFailed{}))
	assert.False(t, tr.CountRecords(1))
	assert.False(t, tr.RequestStop())

	snap := tr.Snapshot()
	assert.Equal(t, job.PhaseIdle, snap.Phase)
	assert.Zero(t, snap.LeadsFound)
}

func TestStopTransitions(t *testing.T) {
	tr, _ := newTracker()
	tr.Apply(events.JobStarted{})

	require.True(t, tr.RequestStop())
	assert.Equal(t, job.PhaseStopping, tr.Phase())
	assert.False(t, tr.RequestStop(), "already stopping")

	assert.True(t, tr.Apply(events.ProgressUpdate{}), "stopping still accepts progress")
	require.True(t, tr.Apply(events.JobCompleted{FinalStatus: "stopped"}))

	snap := tr.Snapshot()
	assert.Equal(t, job.PhaseDone, snap.Phase)
	assert.True(t, snap.Stopped())
}

func TestTerminalPhasesAreFinal(t *testing.T) {
	tr, _ := newTracker()
	tr.Apply(events.JobStarted{})
	tr.Apply(events.JobFailed{Message: "captcha wall"})

	assert.False(t, tr.Apply(events.JobCompleted{}))
	assert.False(t, tr.RequestStop())

	snap := tr.Snapshot()
	assert.Equal(t, job.PhaseError, snap.Phase)
	assert.Equal(t, "captcha wall", snap.Error)
}

func TestElapsedFreezesOnFirstTerminalEvent(t *testing.T) {
	tr, clock := newTracker()
	tr.Apply(events.JobStarted{})

	clock.Advance(30 * time.Second)
	assert.Equal(t, 30, tr.Snapshot().ElapsedSeconds())

	tr.Apply(events.JobCompleted{})
	clock.Advance(time.Hour)
	tr.Apply(events.JobFailed{})

	snap := tr.Snapshot()
	assert.Equal(t, 30, snap.ElapsedSeconds())
	assert.Equal(t, job.PhaseDone, snap.Phase)
}

func TestProgressMergeRules(t *testing.T) {
	tr, _ := newTracker()
	tr.Apply(events.JobStarted{Queries: intp(2)})

	tr.Apply(events.UnitStarted{Sector: "logistiek", Country: "NL"})
	tr.Apply(events.UnitsDiscovered{Count: 10})
	tr.Apply(events.UnitStarted{Sector: "bouw"})
	tr.Apply(events.UnitsDiscovered{Count: 5})
	tr.Apply(events.ProgressUpdate{
		Domain:   "a.nl",
		Counters: &events.Counters{LeadsFound: intp(4), ErrorsCount: intp(2)},
	})
	tr.Apply(events.ProgressUpdate{
		Domain:   "b.nl",
		Counters: &events.Counters{LeadsFound: intp(3), ErrorsCount: intp(1)},
	})
	tr.Apply(events.SearchAttempt{Query: "bouw nl", ResultsFound: 8})

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.ProcessedQueries)
	require.NotNil(t, snap.TotalDomains)
	assert.Equal(t, 15, *snap.TotalDomains)
	assert.Equal(t, 2, snap.ProcessedDomains)
	assert.Equal(t, 4, snap.LeadsFound, "counters never regress")
	assert.Equal(t, 2, snap.ErrorsCount)
	assert.Equal(t, "bouw", snap.CurrentSector)
	assert.Equal(t, "NL", snap.CurrentCountry)
	assert.Equal(t, "b.nl", snap.CurrentDomain)
	require.NotNil(t, snap.LastSearch)
	assert.Equal(t, 8, snap.LastSearch.ResultsFound)
}

func TestJobCompletedKeepsLastKnownCount(t *testing.T) {
	tr, _ := newTracker()
	tr.Apply(events.JobStarted{})
	tr.CountRecords(6)

	tr.Apply(events.JobCompleted{})
	assert.Equal(t, 6, tr.Snapshot().LeadsFound)
}

func TestSnapshotIsACopy(t *testing.T) {
	tr, _ := newTracker()
	tr.Apply(events.JobStarted{Queries: intp(3)})

	snap := tr.Snapshot()
	*snap.TotalQueries = 99

	assert.Equal(t, 3, *tr.Snapshot().TotalQueries)
}

// Target 100: job_started{queries:5}, ten progress{leadsFound:1} over twelve
// seconds, then job_done{leadsFound:42}.
func TestTargetScenario(t *testing.T) {
	const target = 100
	tr, clock := newTracker()

	tr.Apply(events.JobStarted{Queries: intp(5)})

	sawRate := false
	for i := 0; i < 10; i++ {
		clock.Advance(1200 * time.Millisecond)
		tr.Apply(events.ProgressUpdate{LeadsFound: intp(1)})

		snap := tr.Snapshot()
		d := metrics.Compute(snap.LeadsFound, snap.Elapsed.Seconds(), target)
		if snap.Elapsed.Seconds() <= 10 {
			assert.False(t, d.RateAvailable)
			assert.False(t, d.ETAKnown)
		} else {
			sawRate = true
			assert.True(t, d.RateAvailable)
			assert.True(t, d.ETAKnown)
			assert.GreaterOrEqual(t, d.ETASeconds, 0)
		}
	}
	assert.True(t, sawRate, "rate becomes computable after the warm-up")

	tr.Apply(events.JobCompleted{LeadsFound: intp(42)})

	snap := tr.Snapshot()
	assert.Equal(t, job.PhaseDone, snap.Phase)
	assert.Equal(t, 42, snap.LeadsFound)
	assert.Equal(t, 12, snap.ElapsedSeconds())
	assert.Equal(t, 42, metrics.Compute(snap.LeadsFound, snap.Elapsed.Seconds(), target).ProgressPct)
}
