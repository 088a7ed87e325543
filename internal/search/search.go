// Package search finds projects and review sessions by free text, using
// Meilisearch when configured and a Postgres fallback otherwise.
package search

type ResultType string

const (
	ResultProject ResultType = "project"
	ResultSession ResultType = "session"
)

type Query struct {
	Text   string
	Limit  int
	Offset int
}

type Result struct {
	ID        string     `json:"id"`
	Type      ResultType `json:"type"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId,omitempty"`
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ProjectRecord is the indexable shape of a project.
type ProjectRecord struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Notes  string `json:"notes"`
	Stack  string `json:"stack"`
	Status string `json:"status"`
}

// SessionRecord is the indexable shape of a review session.
type SessionRecord struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Summary   string `json:"summary"`
	Milestone string `json:"milestone"`
}
