package models

// User is the authenticated account returned by the auth endpoints.
type User struct {
	ID    string `json:"id" yaml:"id"`
	Email string `json:"email" yaml:"email"`
}

// AuthResponse is returned by POST /auth/login and POST /auth/register.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Workspace groups lead lists and scrape sessions.
type Workspace struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	CreatedAt *Timestamp `json:"created_at,omitempty" yaml:"-"`
}

// LeadList is a named, targeted collection of leads within a workspace.
type LeadList struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id,omitempty"`
	Name        string     `json:"name"`
	TargetLeads int        `json:"target_leads"`
	LeadCount   int        `json:"lead_count"`
	UseCase     string     `json:"use_case,omitempty"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
}

// CreateListInput is the body of POST /lists.
type CreateListInput struct {
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
	TargetLeads int    `json:"targetLeads"`
	UseCase     string `json:"useCase,omitempty"`
}
