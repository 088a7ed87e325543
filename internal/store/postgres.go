package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const projectColumns = `id, title, description, stack, status, percentage, start_date, end_date, notes, roadmap, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var item Project
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Stack, &item.Status,
		&item.Percentage, &item.StartDate, &item.EndDate, &item.Notes, &item.Roadmap,
		&item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE id=$1
	`, projectID)
	return scanProject(row)
}

// FindProjectByTitle resolves a free-text project name from a webhook answer
// against stored titles with a case-insensitive substring match. When several
// titles match, the most recently updated project wins. Returns nil when
// nothing matches.
func (s *PostgresStore) FindProjectByTitle(ctx context.Context, name string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE title ILIKE '%' || $1 || '%'
		ORDER BY updated_at DESC
		LIMIT 1
	`, name)
	item, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find project by title: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, item Project) (Project, error) {
	roadmap := item.Roadmap
	if len(roadmap) == 0 {
		roadmap = json.RawMessage(`[]`)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (id, title, description, stack, status, percentage, start_date, end_date, notes, roadmap)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+projectColumns+`
	`, item.ID, item.Title, item.Description, item.Stack, item.Status, item.Percentage,
		item.StartDate, item.EndDate, item.Notes, []byte(roadmap))
	inserted, err := scanProject(row)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, item Project) (Project, error) {
	roadmap := item.Roadmap
	if len(roadmap) == 0 {
		roadmap = json.RawMessage(`[]`)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE projects
		SET title=$2, description=$3, stack=$4, status=$5, percentage=$6,
			start_date=$7, end_date=$8, notes=$9, roadmap=$10, updated_at=NOW()
		WHERE id=$1
		RETURNING `+projectColumns+`
	`, item.ID, item.Title, item.Description, item.Stack, item.Status, item.Percentage,
		item.StartDate, item.EndDate, item.Notes, []byte(roadmap))
	updated, err := scanProject(row)
	if err != nil {
		return Project{}, err
	}
	return updated, nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const taskColumns = `id, project_id, title, done, percentage, sort_order, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var item Task
	err := row.Scan(&item.ID, &item.ProjectID, &item.Title, &item.Done,
		&item.Percentage, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE project_id=$1
		ORDER BY sort_order, created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, item Task) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (id, project_id, title, done, percentage, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+taskColumns+`
	`, item.ID, item.ProjectID, item.Title, item.Done, item.Percentage, item.SortOrder)
	inserted, err := scanTask(row)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, item Task) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET title=$2, done=$3, percentage=$4, sort_order=$5, updated_at=NOW()
		WHERE id=$1
		RETURNING `+taskColumns+`
	`, item.ID, item.Title, item.Done, item.Percentage, item.SortOrder)
	updated, err := scanTask(row)
	if err != nil {
		return Task{}, err
	}
	return updated, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id=$1
	`, taskID)
	return scanTask(row)
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const sessionColumns = `id, project_id, calendly_event_id, scheduled_at, completed_at,
	progress_reported, blockers, needs_review, changes_since_last, target_milestone,
	health_status, risk_level, timeline_alignment, delay_analysis, recommendations,
	suggested_focus, action_plan, adjusted_end_date, session_summary, next_milestone,
	created_at`

func scanSession(row interface{ Scan(...any) error }) (ProjectSession, error) {
	var item ProjectSession
	var recommendations, actionPlan []byte
	err := row.Scan(&item.ID, &item.ProjectID, &item.CalendlyEventID, &item.ScheduledAt,
		&item.CompletedAt, &item.ProgressReported, &item.Blockers, &item.NeedsReview,
		&item.ChangesSinceLast, &item.TargetMilestone, &item.HealthStatus, &item.RiskLevel,
		&item.TimelineAlignment, &item.DelayAnalysis, &recommendations, &item.SuggestedFocus,
		&actionPlan, &item.AdjustedEndDate, &item.SessionSummary, &item.NextMilestone,
		&item.CreatedAt)
	if err != nil {
		return ProjectSession{}, err
	}
	if err := json.Unmarshal(recommendations, &item.Recommendations); err != nil {
		return ProjectSession{}, fmt.Errorf("decode recommendations: %w", err)
	}
	if err := json.Unmarshal(actionPlan, &item.ActionPlan); err != nil {
		return ProjectSession{}, fmt.Errorf("decode action plan: %w", err)
	}
	return item, nil
}

// InsertSession writes exactly one session row and returns the persisted
// record. Sessions are never updated afterwards.
func (s *PostgresStore) InsertSession(ctx context.Context, item ProjectSession) (ProjectSession, error) {
	recommendations, err := json.Marshal(nonNilStrings(item.Recommendations))
	if err != nil {
		return ProjectSession{}, fmt.Errorf("encode recommendations: %w", err)
	}
	actionPlan, err := json.Marshal(nonNilStrings(item.ActionPlan))
	if err != nil {
		return ProjectSession{}, fmt.Errorf("encode action plan: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO project_sessions (
			id, project_id, calendly_event_id, scheduled_at, completed_at,
			progress_reported, blockers, needs_review, changes_since_last, target_milestone,
			health_status, risk_level, timeline_alignment, delay_analysis, recommendations,
			suggested_focus, action_plan, adjusted_end_date, session_summary, next_milestone
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING `+sessionColumns+`
	`, item.ID, item.ProjectID, item.CalendlyEventID, item.ScheduledAt, item.CompletedAt,
		item.ProgressReported, item.Blockers, item.NeedsReview, item.ChangesSinceLast,
		item.TargetMilestone, item.HealthStatus, item.RiskLevel, item.TimelineAlignment,
		item.DelayAnalysis, recommendations, item.SuggestedFocus, actionPlan,
		item.AdjustedEndDate, item.SessionSummary, item.NextMilestone)

	inserted, err := scanSession(row)
	if err != nil {
		return ProjectSession{}, fmt.Errorf("insert session: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, projectID string) ([]ProjectSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM project_sessions
		ORDER BY created_at DESC
	`
	args := []any{}
	if projectID != "" {
		query = `
			SELECT ` + sessionColumns + `
			FROM project_sessions
			WHERE project_id=$1
			ORDER BY created_at DESC
		`
		args = append(args, projectID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectSession, 0)
	for rows.Next() {
		item, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return items, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
