// Package gitlab reads the migration source from the GitLab REST and GraphQL APIs.
package gitlab

import (
	"net/http"
	"time"

	"github.com/similigh/gl2gh/internal/retry"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitLab API v4 endpoint suffix.
	DefaultAPIEndpoint = "/api/v4"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPageSize is the maximum number of items to fetch per page.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	// This prevents infinite loops from malformed X-Next-Page headers.
	MaxPages = 1000
)

// Client provides read access to one GitLab project.
type Client struct {
	Token      string       // GitLab personal access token
	BaseURL    string       // GitLab instance URL (e.g., "https://gitlab.com")
	ProjectID  string       // Project ID or path (e.g., "group/project")
	HTTPClient *http.Client // Optional custom HTTP client
	Retry      retry.Config
}

// Issue represents an issue from the GitLab API.
type Issue struct {
	ID          int        `json:"id"`  // Global issue ID
	IID         int        `json:"iid"` // Project-scoped issue ID
	ProjectID   int        `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       string     `json:"state"` // "opened", "closed"
	CreatedAt   *time.Time `json:"created_at"`
	Labels      []string   `json:"labels"`
	Author      *User      `json:"author,omitempty"`
	Milestone   *Milestone `json:"milestone,omitempty"`
	WebURL      string     `json:"web_url"`

	References *References `json:"references,omitempty"`

	// LinkType is only set on entries returned by the issue links endpoint.
	LinkType string `json:"link_type,omitempty"`
}

// References holds the textual references GitLab reports for an issue.
type References struct {
	Short    string `json:"short"`
	Relative string `json:"relative"`
	Full     string `json:"full"` // "group/project#42"
}

// User represents a GitLab user.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Milestone represents a GitLab milestone.
type Milestone struct {
	ID          int        `json:"id"`
	IID         int        `json:"iid"`
	ProjectID   int        `json:"project_id,omitempty"`
	GroupID     int        `json:"group_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	State       string     `json:"state"` // "active", "closed"
	DueDate     string     `json:"due_date,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	WebURL      string     `json:"web_url,omitempty"`
}

// Label represents a GitLab label.
type Label struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// Note is a comment or system note on an issue.
type Note struct {
	ID        int        `json:"id"`
	Body      string     `json:"body"`
	Author    *User      `json:"author,omitempty"`
	CreatedAt *time.Time `json:"created_at"`
	System    bool       `json:"system"`
}

// Project represents a GitLab project.
type Project struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Path              string `json:"path"`
	PathWithNamespace string `json:"path_with_namespace"`
	Description       string `json:"description,omitempty"`
	WebURL            string `json:"web_url"`
	HTTPURLToRepo     string `json:"http_url_to_repo"`
	DefaultBranch     string `json:"default_branch,omitempty"`
}

// WorkItemChild is a child in a work item hierarchy.
type WorkItemChild struct {
	IID    int
	Title  string
	State  string
	Type   string
	WebURL string
}
