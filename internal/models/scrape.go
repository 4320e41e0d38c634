package models

import "time"

// Scrape session statuses as reported by GET /scrape/sessions.
const (
	SessionRunning = "running"
	SessionDone    = "done"
	SessionError   = "error"
	SessionStopped = "stopped"
)

// ScrapeSession is one persisted run of the scraper.
type ScrapeSession struct {
	ID           string     `json:"id"`
	ListID       string     `json:"list_id,omitempty"`
	ListName     string     `json:"list_name,omitempty"`
	Status       string     `json:"status"`
	LeadsFound   int        `json:"leads_found"`
	DupesSkipped int        `json:"dupes_skipped"`
	CreatedAt    Timestamp  `json:"created_at"`
	FinishedAt   *Timestamp `json:"finished_at,omitempty"`
}

// Duration returns how long the session ran, measured up to now for sessions
// that have not finished.
func (s ScrapeSession) Duration(now time.Time) time.Duration {
	end := now
	if s.FinishedAt != nil && !s.FinishedAt.IsZero() {
		end = s.FinishedAt.Time
	}
	if end.Before(s.CreatedAt.Time) {
		return 0
	}
	return end.Sub(s.CreatedAt.Time)
}

// ScrapeConfig configures a scrape job started via POST /lists/{id}/extend.
type ScrapeConfig struct {
	TargetLeads     int      `json:"targetLeads"`
	SectorKeys      []string `json:"sectorKeys"`
	CountryKeys     []string `json:"countryKeys"`
	MinScore        int      `json:"minScore"`
	Concurrency     int      `json:"concurrency"`
	EmailValidation bool     `json:"emailValidation"`
	DeepValidation  bool     `json:"deepValidation"`
	UsePuppeteer    bool     `json:"usePuppeteer"`
}

// DefaultScrapeConfig returns the configuration the dashboard starts with.
func DefaultScrapeConfig() ScrapeConfig {
	return ScrapeConfig{
		TargetLeads:     100,
		SectorKeys:      []string{},
		CountryKeys:     []string{},
		MinScore:        50,
		Concurrency:     5,
		EmailValidation: true,
		DeepValidation:  false,
		UsePuppeteer:    true,
	}
}

// ExtendResponse is returned when a scrape job was accepted.
type ExtendResponse struct {
	SessionID string `json:"sessionId"`
}

// Sector is one entry of the sector catalogue, with its search queries.
type Sector struct {
	Key     string   `json:"key" yaml:"key"`
	Label   string   `json:"label" yaml:"label"`
	Queries []string `json:"queries" yaml:"queries"`
}
