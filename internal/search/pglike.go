package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PgLike is the Postgres fallback: case-insensitive substring search over
// project titles/notes and session summaries/milestones.
type PgLike struct {
	db *sql.DB
}

func NewPgLike(db *sql.DB) *PgLike {
	return &PgLike{db: db}
}

func (p *PgLike) Search(ctx context.Context, q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}

	// Counted separately: len of the page under-reports once LIMIT kicks in.
	var total int
	err := p.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM projects
			 WHERE title ILIKE '%' || $1 || '%' OR notes ILIKE '%' || $1 || '%')
			+
			(SELECT COUNT(*) FROM project_sessions
			 WHERE session_summary ILIKE '%' || $1 || '%' OR next_milestone ILIKE '%' || $1 || '%')
	`, q.Text).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, 'project', title, notes, id
		FROM projects
		WHERE title ILIKE '%' || $1 || '%' OR notes ILIKE '%' || $1 || '%'
		UNION ALL
		SELECT id, 'session', next_milestone, session_summary, COALESCE(project_id::text, '')
		FROM project_sessions
		WHERE session_summary ILIKE '%' || $1 || '%' OR next_milestone ILIKE '%' || $1 || '%'
		LIMIT $2 OFFSET $3
	`, q.Text, limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		var rtyp string
		if err := rows.Scan(&r.ID, &rtyp, &r.Title, &r.Snippet, &r.ProjectID); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		r.Type = ResultType(rtyp)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search results: %w", err)
	}
	return results, total, nil
}
