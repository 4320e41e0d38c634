// Package models defines the data structures exchanged with the lead-scraping backend.
package models

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// Lead is one discovered business. Its identity is the natural key returned by
// Key, never the backend ID or the arrival order.
type Lead struct {
	ID          string         `json:"id,omitempty"`
	Domain      string         `json:"domain"`
	Website     string         `json:"website,omitempty"`
	CompanyName string         `json:"company_name,omitempty"`
	Email       string         `json:"email,omitempty"`
	AllEmails   []string       `json:"all_emails,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Sector      string         `json:"sector,omitempty"`
	Country     string         `json:"country,omitempty"`
	Score       int            `json:"erp_score"`
	Address     string         `json:"address,omitempty"`
	Description string         `json:"description,omitempty"`
	ListID      string         `json:"list_id,omitempty"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	CreatedAt   *Timestamp     `json:"created_at,omitempty"`
}

// leadWire accepts both the snake_case REST shape and the camelCase shape
// some stream producers emit.
type leadWire struct {
	ID          json.RawMessage `json:"id"`
	Domain      string          `json:"domain"`
	Website     string          `json:"website"`
	CompanyName string          `json:"company_name"`
	CompanyAlt  string          `json:"companyName"`
	Email       string          `json:"email"`
	AllEmails   []string        `json:"all_emails"`
	AllEmailsA  []string        `json:"allEmails"`
	Phone       string          `json:"phone"`
	Sector      string          `json:"sector"`
	Country     string          `json:"country"`
	Score       *float64        `json:"erp_score"`
	ScoreAlt    *float64        `json:"erpScore"`
	ScorePlain  *float64        `json:"score"`
	Address     string          `json:"address"`
	Description string          `json:"description"`
	ListID      string          `json:"list_id"`
	ListIDAlt   string          `json:"listId"`
	WorkspaceID string          `json:"workspace_id"`
	WorkspaceA  string          `json:"workspaceId"`
	Attributes  map[string]any  `json:"attributes"`
	CreatedAt   *Timestamp      `json:"created_at"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Lead) UnmarshalJSON(data []byte) error {
	var w leadWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*l = Lead{
		ID:          rawID(w.ID),
		Domain:      w.Domain,
		Website:     w.Website,
		CompanyName: firstNonEmpty(w.CompanyName, w.CompanyAlt),
		Email:       w.Email,
		AllEmails:   w.AllEmails,
		Phone:       w.Phone,
		Sector:      w.Sector,
		Country:     w.Country,
		Address:     w.Address,
		Description: w.Description,
		ListID:      firstNonEmpty(w.ListID, w.ListIDAlt),
		WorkspaceID: firstNonEmpty(w.WorkspaceID, w.WorkspaceA),
		Attributes:  w.Attributes,
		CreatedAt:   w.CreatedAt,
	}
	if l.AllEmails == nil {
		l.AllEmails = w.AllEmailsA
	}
	for _, s := range []*float64{w.Score, w.ScoreAlt, w.ScorePlain} {
		if s != nil {
			l.Score = int(*s)
			break
		}
	}
	return nil
}

// Key returns the natural key of the lead.
func (l Lead) Key() string {
	if k := NormalizeDomain(l.Domain); k != "" {
		return k
	}
	return NormalizeDomain(l.Website)
}

// DisplayName returns the company name, falling back to the domain.
func (l Lead) DisplayName() string {
	return firstNonEmpty(l.CompanyName, l.Domain, l.Website)
}

// LeadPage is one page of persisted leads as returned by GET /leads.
type LeadPage struct {
	Data  []Lead `json:"data"`
	Total int    `json:"total"`
}

// DefaultPageSize is the page size of the leads table.
const DefaultPageSize = 50

// LeadQuery selects one page of persisted leads.
type LeadQuery struct {
	WorkspaceID string
	ListID      string
	Page        int // 1-based
	Limit       int
	MinScore    int
	Search      string
}

// Normalize fills in defaults for unset paging fields.
func (q LeadQuery) Normalize() LeadQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.MinScore < 0 {
		q.MinScore = 0
	}
	return q
}

// Values encodes the query as GET /leads parameters.
func (q LeadQuery) Values() url.Values {
	q = q.Normalize()
	v := url.Values{}
	if q.WorkspaceID != "" {
		v.Set("workspaceId", q.WorkspaceID)
	}
	if q.ListID != "" {
		v.Set("listId", q.ListID)
	}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("minScore", strconv.Itoa(q.MinScore))
	v.Set("search", q.Search)
	return v
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
