// Package job tracks the lifecycle and progress counters of the scrape job
// the client is currently watching.
package job

import (
	"time"

	"github.com/raphaelgruber/leadwatch/internal/events"
)

// Phase is the lifecycle state of the tracked job.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
	PhaseDone     Phase = "done"
	PhaseError    Phase = "error"
)

// Active reports whether the job is in flight.
func (p Phase) Active() bool {
	return p == PhaseRunning || p == PhaseStopping
}

// Terminal reports whether the job has finished, successfully or not.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError
}

// Progress is an immutable snapshot of the tracked job.
type Progress struct {
	Phase Phase

	LeadsFound       int
	ProcessedDomains int
	TotalDomains     *int // nil until a domains_found event arrives
	ProcessedQueries int
	TotalQueries     *int // nil when job_started carried no query count
	ErrorsCount      int
	Duplicates       int

	CurrentSector  string
	CurrentCountry string
	CurrentDomain  string
	LastSearch     *events.SearchAttempt

	WorkspaceID string
	SessionID   string
	ListID      string

	FinalStatus string // "stopped" when the backend honoured a stop request
	Error       string

	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration
}

// ElapsedSeconds returns the elapsed time truncated to whole seconds.
func (p Progress) ElapsedSeconds() int {
	return int(p.Elapsed / time.Second)
}

// Stopped reports whether the job ended because a stop was requested.
func (p Progress) Stopped() bool {
	return p.Phase == PhaseDone && p.FinalStatus == "stopped"
}

// clone copies p so the returned value shares no pointers with the tracker.
func (p Progress) clone() Progress {
	p.TotalDomains = cloneInt(p.TotalDomains)
	p.TotalQueries = cloneInt(p.TotalQueries)
	if p.LastSearch != nil {
		s := *p.LastSearch
		p.LastSearch = &s
	}
	return p
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
