// Package events decodes stream frames into typed events and routes them to
// registered listeners.
//
// The set of events is closed: every decoded frame is one of the types in
// this file. Unknown tags decode to Ignored rather than to a loosely typed
// map.
package events

import (
	"bytes"
	"encoding/json"

	"github.com/raphaelgruber/leadwatch/internal/models"
)

// Kind is the wire tag of an event.
type Kind string

// Wire tags of inbound events.
const (
	KindStatus          Kind = "status"
	KindRecordFound     Kind = "lead"
	KindRecordsFound    Kind = "leads"
	KindLog             Kind = "log"
	KindSearchAttempt   Kind = "search_progress"
	KindProgress        Kind = "progress"
	KindJobStarted      Kind = "job_started"
	KindJobCompleted    Kind = "job_done"
	KindJobFailed       Kind = "job_error"
	KindUnitStarted     Kind = "query_start"
	KindUnitsDiscovered Kind = "domains_found"
)

// Event is implemented by every decoded event.
type Event interface {
	Kind() Kind
	event() // marker
}

// Status acknowledges the connection and reports the backend's view of it.
type Status struct {
	Authenticated *bool  `json:"authenticated,omitempty"`
	Running       bool   `json:"running"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Rejected reports whether the backend refused the auth handshake.
func (s Status) Rejected() bool {
	return s.Authenticated != nil && !*s.Authenticated
}

// RecordFound carries one lead discovered by the running job.
type RecordFound struct {
	Lead        models.Lead
	WorkspaceID string
}

// UnmarshalJSON accepts {"lead": {...}} as well as a bare lead object.
func (r *RecordFound) UnmarshalJSON(data []byte) error {
	var w struct {
		Lead        *models.Lead `json:"lead"`
		WorkspaceID string       `json:"workspaceId"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.WorkspaceID = w.WorkspaceID
	if w.Lead != nil {
		r.Lead = *w.Lead
		return nil
	}
	return json.Unmarshal(data, &r.Lead)
}

// RecordsFound carries a batch of leads, oldest first. A bare array payload
// has no workspace tag.
type RecordsFound struct {
	Leads       []models.Lead
	WorkspaceID string
}

// UnmarshalJSON accepts {"leads": [...], "workspaceId": ...} as well as a
// bare array.
func (r *RecordsFound) UnmarshalJSON(data []byte) error {
	if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '[' {
		return json.Unmarshal(t, &r.Leads)
	}
	var w struct {
		Leads       []models.Lead `json:"leads"`
		WorkspaceID string        `json:"workspaceId"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Leads = w.Leads
	r.WorkspaceID = w.WorkspaceID
	return nil
}

// LogMessage is a human-readable progress line.
type LogMessage struct {
	Level       string `json:"level"`
	Message     string `json:"message"`
	WorkspaceID string `json:"workspaceId,omitempty"`
}

// SearchAttempt reports the outcome of the last search-engine query.
type SearchAttempt struct {
	Query        string `json:"query,omitempty"`
	Source       string `json:"source,omitempty"`
	ResultsFound int    `json:"resultsFound"`
	Blocked      bool   `json:"blocked"`
}

// Counters are the absolute job counters some events carry.
type Counters struct {
	LeadsFound       *int `json:"leadsFound,omitempty"`
	ErrorsCount      *int `json:"errorsCount,omitempty"`
	ProcessedDomains *int `json:"processedDomains,omitempty"`
	DupesSkipped     *int `json:"dupesSkipped,omitempty"`
}

// ProgressUpdate reports that one domain was processed. Counters may arrive
// nested under "counters" or at the top level.
type ProgressUpdate struct {
	Domain      string    `json:"domain,omitempty"`
	Counters    *Counters `json:"counters,omitempty"`
	LeadsFound  *int      `json:"leadsFound,omitempty"`
	Dupes       *int      `json:"dupes,omitempty"`
	Processed   *int      `json:"processed,omitempty"`
	Total       *int      `json:"total,omitempty"`
	Percent     *int      `json:"percent,omitempty"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
}

// Leads returns the absolute lead count carried by the update, if any.
func (p ProgressUpdate) Leads() (int, bool) {
	return pick(p.Counters, func(c *Counters) *int { return c.LeadsFound }, p.LeadsFound)
}

// Errors returns the absolute error count carried by the update, if any.
func (p ProgressUpdate) Errors() (int, bool) {
	return pick(p.Counters, func(c *Counters) *int { return c.ErrorsCount }, nil)
}

// Duplicates returns the absolute duplicate count carried by the update, if any.
func (p ProgressUpdate) Duplicates() (int, bool) {
	return pick(p.Counters, func(c *Counters) *int { return c.DupesSkipped }, p.Dupes)
}

// JobStarted announces a new job. Queries is the number of planned searches.
type JobStarted struct {
	Queries     *int   `json:"queries,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	ListID      string `json:"listId,omitempty"`
}

// JobCompleted announces the end of the job, including user-requested stops
// (FinalStatus "stopped").
type JobCompleted struct {
	FinalStatus string    `json:"finalStatus,omitempty"`
	Counters    *Counters `json:"counters,omitempty"`
	LeadsFound  *int      `json:"leadsFound,omitempty"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
}

// Leads returns the final lead count carried by the event, if any.
func (j JobCompleted) Leads() (int, bool) {
	return pick(j.Counters, func(c *Counters) *int { return c.LeadsFound }, j.LeadsFound)
}

// JobFailed announces that the job aborted.
type JobFailed struct {
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`
}

// Reason returns the most descriptive failure text available.
func (j JobFailed) Reason() string {
	if j.Error != "" {
		return j.Error
	}
	if j.Message != "" {
		return j.Message
	}
	return "job failed"
}

// UnitStarted reports that the job started working on one search query.
type UnitStarted struct {
	Sector  string `json:"sector,omitempty"`
	Country string `json:"country,omitempty"`
	Query   string `json:"query,omitempty"`
}

// UnitsDiscovered reports how many candidate domains a query produced.
type UnitsDiscovered struct {
	Count int    `json:"count"`
	Query string `json:"query,omitempty"`
}

// Ignored stands for a well-formed frame with an unknown tag.
type Ignored struct {
	Tag string
}

func (Status) Kind() Kind          { return KindStatus }
func (RecordFound) Kind() Kind     { return KindRecordFound }
func (RecordsFound) Kind() Kind    { return KindRecordsFound }
func (LogMessage) Kind() Kind      { return KindLog }
func (SearchAttempt) Kind() Kind   { return KindSearchAttempt }
func (ProgressUpdate) Kind() Kind  { return KindProgress }
func (JobStarted) Kind() Kind      { return KindJobStarted }
func (JobCompleted) Kind() Kind    { return KindJobCompleted }
func (JobFailed) Kind() Kind       { return KindJobFailed }
func (UnitStarted) Kind() Kind     { return KindUnitStarted }
func (UnitsDiscovered) Kind() Kind { return KindUnitsDiscovered }
func (i Ignored) Kind() Kind       { return Kind(i.Tag) }

func (Status) event()          {}
func (RecordFound) event()     {}
func (RecordsFound) event()    {}
func (LogMessage) event()      {}
func (SearchAttempt) event()   {}
func (ProgressUpdate) event()  {}
func (JobStarted) event()      {}
func (JobCompleted) event()    {}
func (JobFailed) event()       {}
func (UnitStarted) event()     {}
func (UnitsDiscovered) event() {}
func (Ignored) event()         {}

// pick prefers the nested counter over the top-level fallback.
func pick(c *Counters, field func(*Counters) *int, fallback *int) (int, bool) {
	if c != nil {
		if v := field(c); v != nil {
			return *v, true
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return 0, false
}
