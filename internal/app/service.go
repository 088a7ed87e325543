package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/688-png/dev-partner/internal/ai"
	"github.com/688-png/dev-partner/internal/analysis"
	"github.com/688-png/dev-partner/internal/cache"
	"github.com/688-png/dev-partner/internal/config"
	"github.com/688-png/dev-partner/internal/search"
	"github.com/688-png/dev-partner/internal/store"
)

var allowedProjectStatus = map[string]struct{}{
	"not-started": {},
	"in-progress": {},
	"complete":    {},
}

type dataStore interface {
	Ping(context.Context) error
	ListProjects(context.Context) ([]store.Project, error)
	GetProject(context.Context, string) (store.Project, error)
	FindProjectByTitle(context.Context, string) (*store.Project, error)
	InsertProject(context.Context, store.Project) (store.Project, error)
	UpdateProject(context.Context, store.Project) (store.Project, error)
	DeleteProject(context.Context, string) error
	ListTasks(context.Context, string) ([]store.Task, error)
	GetTask(context.Context, string) (store.Task, error)
	InsertTask(context.Context, store.Task) (store.Task, error)
	UpdateTask(context.Context, store.Task) (store.Task, error)
	DeleteTask(context.Context, string) error
	InsertSession(context.Context, store.ProjectSession) (store.ProjectSession, error)
	ListSessions(context.Context, string) ([]store.ProjectSession, error)
}

type analyzer interface {
	Generate(ctx context.Context, project *store.Project, input analysis.SessionInput) analysis.Analysis
}

type completionClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Configured() bool
}

type responseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexProject(record search.ProjectRecord)
	IndexSession(record search.SessionRecord)
	DeleteProject(id string)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	analyzer analyzer
	ai       completionClient
	cache    responseCache
	search   searchIndex
}

// New builds the service. cache and searchService may be nil when Redis or
// Meilisearch are not configured.
func New(cfg config.Config, dataStore *store.PostgresStore, aiClient *ai.Client, responseCache *cache.ResponseCache, searchService *search.Service) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		analyzer: analysis.NewGenerator(aiClient),
		ai:       aiClient,
	}
	if responseCache != nil {
		s.cache = responseCache
	}
	if searchService != nil {
		s.search = searchService
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CacheEnabled() bool {
	return s.cache != nil
}

// CachePing reports Redis health. Callers treat a failure as degraded, not
// down: the cache only saves gateway quota.
func (s *Service) CachePing(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

func (s *Service) WebhookSigningKey() string {
	return s.cfg.WebhookSigningKey
}

// ── Sessions ──

type ManualSessionInput struct {
	ProjectID        string `json:"project_id"`
	ProgressReported int    `json:"progress_reported"`
	Blockers         string `json:"blockers"`
	NeedsReview      string `json:"needs_review"`
	ChangesSinceLast string `json:"changes_since_last"`
	TargetMilestone  string `json:"target_milestone"`
}

// CalendlyEnvelope is the event shape delivered by the scheduling webhook.
type CalendlyEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Event struct {
			UUID      string `json:"uuid"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
		} `json:"event"`
		Invitee struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"invitee"`
		QuestionsAndAnswers []QuestionAnswer `json:"questions_and_answers"`
	} `json:"payload"`
}

// CreateManualSession records a review session reported through the API
// rather than the scheduler. The referenced project must exist.
func (s *Service) CreateManualSession(ctx context.Context, input ManualSessionInput) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, input.ProjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainError(404, "PROJECT_NOT_FOUND", "Project not found: "+input.ProjectID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	sessionInput := analysis.SessionInput{
		ProgressReported: input.ProgressReported,
		Blockers:         input.Blockers,
		NeedsReview:      input.NeedsReview,
		ChangesSinceLast: input.ChangesSinceLast,
		TargetMilestone:  input.TargetMilestone,
	}
	result := s.analyzer.Generate(ctx, &project, sessionInput)

	now := time.Now().UTC()
	record, err := s.persistSession(ctx, store.ProjectSession{
		ID:          uuid.NewString(),
		ProjectID:   &project.ID,
		ScheduledAt: now,
		CompletedAt: &now,
	}, sessionInput, result)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"session":  sessionPayload(record),
		"analysis": result,
	}, nil
}

// HandleSchedulingEvent ingests an invitee.created envelope: normalizes the
// question/answer form, resolves the project by fuzzy title, analyzes and
// persists. An unmatched project name is not an error; the session is kept
// unlinked for later manual association.
func (s *Service) HandleSchedulingEvent(ctx context.Context, envelope CalendlyEnvelope) (map[string]any, error) {
	projectName, sessionInput := extractSessionInput(envelope.Payload.QuestionsAndAnswers)

	project, err := s.store.FindProjectByTitle(ctx, projectName)
	if err != nil {
		return nil, fmt.Errorf("resolve project: %w", err)
	}

	result := s.analyzer.Generate(ctx, project, sessionInput)

	record := store.ProjectSession{
		ID:          uuid.NewString(),
		ScheduledAt: parseEventTime(envelope.Payload.Event.StartTime),
	}
	if project != nil {
		record.ProjectID = &project.ID
	}
	if eventID := envelope.Payload.Event.UUID; eventID != "" {
		record.CalendlyEventID = &eventID
	}

	persisted, err := s.persistSession(ctx, record, sessionInput, result)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"session":  sessionPayload(persisted),
		"analysis": result,
	}, nil
}

// persistSession writes the one append-only row for a review event. Persistence
// runs only after the analysis is fully resolved, so a store rejection never
// leaves a partial record.
func (s *Service) persistSession(ctx context.Context, record store.ProjectSession, input analysis.SessionInput, result analysis.Analysis) (store.ProjectSession, error) {
	record.ProgressReported = input.ProgressReported
	record.Blockers = input.Blockers
	record.NeedsReview = input.NeedsReview
	record.ChangesSinceLast = input.ChangesSinceLast
	record.TargetMilestone = input.TargetMilestone

	record.HealthStatus = result.HealthStatus
	record.RiskLevel = result.RiskLevel
	record.TimelineAlignment = result.TimelineAlignment
	record.DelayAnalysis = result.DelayAnalysis
	record.Recommendations = result.Recommendations
	record.SuggestedFocus = result.SuggestedFocus
	record.ActionPlan = result.ActionPlan
	record.AdjustedEndDate = result.AdjustedEndDate
	record.SessionSummary = result.SessionSummary
	record.NextMilestone = result.NextMilestone

	persisted, err := s.store.InsertSession(ctx, record)
	if err != nil {
		return store.ProjectSession{}, fmt.Errorf("persist session: %w", err)
	}

	if s.search != nil {
		projectID := ""
		if persisted.ProjectID != nil {
			projectID = *persisted.ProjectID
		}
		s.search.IndexSession(search.SessionRecord{
			ID:        persisted.ID,
			ProjectID: projectID,
			Summary:   persisted.SessionSummary,
			Milestone: persisted.NextMilestone,
		})
	}
	return persisted, nil
}

func (s *Service) ListSessions(ctx context.Context, projectID string) ([]map[string]any, error) {
	sessions, err := s.store.ListSessions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		payloads = append(payloads, sessionPayload(session))
	}
	return payloads, nil
}

func parseEventTime(value string) time.Time {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed
	}
	return time.Now().UTC()
}

// ── AI generation endpoints ──

const structureSystemPrompt = `You are DevScaffold AI, an expert software architect that generates folder structures and roadmaps for development projects.

When given a project description, you MUST respond with a valid JSON object containing:

1. "stack" - The recommended tech stack (one of: "mern", "mean", "nextjs", "react-supabase", "vue-firebase", or a custom stack name)
2. "stackName" - Human readable stack name
3. "stackIcon" - An emoji representing the stack
4. "structure" - A folder tree structure object with:
   - "name": folder/file name
   - "type": "folder" or "file"
   - "description": optional description
   - "children": array of child nodes (for folders)
5. "roadmap" - Array of build steps, each with:
   - "step": step number
   - "title": step title
   - "description": what to do
   - "commands": array of terminal commands (optional)
   - "tips": array of helpful tips (optional)
6. "tips" - Array of 3-5 contextual tips specific to this project type

Consider:
- Project complexity (beginner vs enterprise)
- Best practices for the chosen stack
- Scalability and maintainability
- Security considerations
- Testing strategies

Respond ONLY with valid JSON. No markdown, no explanation, just the JSON object.`

// GenerateStructure asks the gateway for a scaffold proposal and returns its
// JSON verbatim. Unlike the webhook path, upstream failures surface here.
func (s *Service) GenerateStructure(ctx context.Context, description string) (json.RawMessage, error) {
	description = strings.TrimSpace(description)
	if len(description) < 5 {
		return nil, domainError(400, "VALIDATION_ERROR", "Please provide a more detailed project description", nil)
	}

	cacheKey := cache.Key("generate-structure", []byte(description))
	if cached, ok := s.cacheGet(ctx, cacheKey); ok {
		return cached, nil
	}

	content, err := s.ai.Complete(ctx, structureSystemPrompt,
		"Generate a complete project structure and roadmap for: "+description)
	if err != nil {
		return nil, mapGatewayError(err)
	}

	parsed, err := parseJSONContent(content)
	if err != nil {
		log.Printf("generate-structure: %v", err)
		return nil, domainError(500, "AI_PARSE_ERROR", "Failed to parse AI response", nil)
	}

	s.cacheSet(ctx, cacheKey, parsed)
	return parsed, nil
}

type GuidanceInput struct {
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Stack           string         `json:"stack"`
	CurrentProgress int            `json:"currentProgress"`
	Tasks           []GuidanceTask `json:"tasks"`
}

type GuidanceTask struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// ProjectGuidance asks the gateway for a roadmap, tips and next steps for an
// existing project.
func (s *Service) ProjectGuidance(ctx context.Context, input GuidanceInput) (json.RawMessage, error) {
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Stack) == "" {
		return nil, domainError(400, "VALIDATION_ERROR", "title and stack are required", nil)
	}

	payload, _ := json.Marshal(input)
	cacheKey := cache.Key("project-guidance", payload)
	if cached, ok := s.cacheGet(ctx, cacheKey); ok {
		return cached, nil
	}

	content, err := s.ai.Complete(ctx, guidanceSystemPrompt(input), guidanceUserPrompt(input))
	if err != nil {
		return nil, mapGatewayError(err)
	}

	parsed, err := parseJSONContent(content)
	if err != nil {
		log.Printf("project-guidance: %v", err)
		return nil, domainError(500, "AI_PARSE_ERROR", "Failed to parse AI response", nil)
	}

	s.cacheSet(ctx, cacheKey, parsed)
	return parsed, nil
}

func guidanceSystemPrompt(input GuidanceInput) string {
	return fmt.Sprintf(`You are an expert software architect and project manager. Generate guidance for a %s development project.

Your response MUST be valid JSON with this exact structure:
{
  "roadmap": [
    {
      "phase": "Phase 1",
      "title": "Phase title",
      "description": "What this phase accomplishes",
      "duration": "1-2 weeks",
      "tasks": ["Task 1", "Task 2", "Task 3"]
    }
  ],
  "tips": ["Tip 1", "Tip 2", "Tip 3"],
  "nextSteps": ["Step 1", "Step 2", "Step 3"]
}

Guidelines:
- Create 4-6 phases for the roadmap
- Each phase should have 3-5 specific tasks
- Tips should be specific to the %s stack
- Next steps should consider current progress (%d%%)
- Make recommendations practical and actionable`, input.Stack, input.Stack, input.CurrentProgress)
}

func guidanceUserPrompt(input GuidanceInput) string {
	tasks := "None"
	if len(input.Tasks) > 0 {
		parts := make([]string, 0, len(input.Tasks))
		for _, task := range input.Tasks {
			state := "pending"
			if task.Done {
				state = "done"
			}
			parts = append(parts, fmt.Sprintf("%s (%s)", task.Title, state))
		}
		tasks = strings.Join(parts, ", ")
	}
	description := input.Description
	if description == "" {
		description = "No description provided"
	}
	return fmt.Sprintf(`Project: %s
Description: %s
Stack: %s
Current Progress: %d%%
Existing Tasks: %s

Generate a comprehensive roadmap, tips, and next steps for this project.`,
		input.Title, description, input.Stack, input.CurrentProgress, tasks)
}

func parseJSONContent(content string) (json.RawMessage, error) {
	cleaned := ai.StripCodeFences(content)
	if json.Valid([]byte(cleaned)) {
		return json.RawMessage(cleaned), nil
	}
	if raw, ok := ai.ExtractJSONObject(content); ok && json.Valid([]byte(raw)) {
		return json.RawMessage(raw), nil
	}
	return nil, fmt.Errorf("ai content is not valid JSON")
}

func mapGatewayError(err error) error {
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		return domainError(429, "RATE_LIMITED", "Too many requests. Please wait a moment and try again.", nil)
	case errors.Is(err, ai.ErrQuotaExceeded):
		return domainError(402, "QUOTA_EXCEEDED", "AI usage limit reached. Please try again later.", nil)
	case errors.Is(err, ai.ErrNotConfigured):
		return domainError(500, "AI_UNAVAILABLE", "AI service is not configured", nil)
	default:
		return domainError(500, "AI_ERROR", "Failed to generate response", nil)
	}
}

func (s *Service) cacheGet(ctx context.Context, key string) (json.RawMessage, bool) {
	if s.cache == nil {
		return nil, false
	}
	value, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	return json.RawMessage(value), true
}

func (s *Service) cacheSet(ctx context.Context, key string, value json.RawMessage) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		log.Printf("cache: %v", err)
	}
}

// ── Projects & tasks ──

type ProjectInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Stack       string          `json:"stack"`
	Status      string          `json:"status"`
	Percentage  int             `json:"percentage"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	Notes       string          `json:"notes"`
	Roadmap     json.RawMessage `json:"roadmap"`
}

func (s *Service) ListProjects(ctx context.Context) ([]map[string]any, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		payloads = append(payloads, projectPayload(project))
	}
	return payloads, nil
}

func (s *Service) GetProject(ctx context.Context, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	payload := projectPayload(project)
	taskPayloads := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		taskPayloads = append(taskPayloads, taskPayload(task))
	}
	payload["tasks"] = taskPayloads
	return payload, nil
}

func (s *Service) CreateProject(ctx context.Context, input ProjectInput) (map[string]any, error) {
	record, err := projectFromInput(uuid.NewString(), input)
	if err != nil {
		return nil, err
	}

	inserted, err := s.store.InsertProject(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	s.indexProject(inserted)
	return projectPayload(inserted), nil
}

func (s *Service) UpdateProject(ctx context.Context, projectID string, input ProjectInput) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	record, err := projectFromInput(projectID, input)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateProject(ctx, record)
	if err != nil {
		return nil, err
	}
	s.indexProject(updated)
	return projectPayload(updated), nil
}

func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteProject(projectID)
	}
	return nil
}

func projectFromInput(projectID string, input ProjectInput) (store.Project, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.Project{}, validationError("title is required")
	}
	if strings.TrimSpace(input.Stack) == "" {
		return store.Project{}, validationError("stack is required")
	}
	status := input.Status
	if status == "" {
		status = "not-started"
	}
	if _, ok := allowedProjectStatus[status]; !ok {
		return store.Project{}, validationError("status must be not-started, in-progress or complete")
	}
	if input.Percentage < 0 || input.Percentage > 100 {
		return store.Project{}, validationError("percentage must be between 0 and 100")
	}

	startDate, err := parseDateField("start_date", input.StartDate)
	if err != nil {
		return store.Project{}, err
	}
	endDate, err := parseDateField("end_date", input.EndDate)
	if err != nil {
		return store.Project{}, err
	}

	roadmap := input.Roadmap
	if len(roadmap) > 0 && !json.Valid(roadmap) {
		return store.Project{}, validationError("roadmap must be valid JSON")
	}

	return store.Project{
		ID:          projectID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Stack:       input.Stack,
		Status:      status,
		Percentage:  input.Percentage,
		StartDate:   startDate,
		EndDate:     endDate,
		Notes:       input.Notes,
		Roadmap:     roadmap,
	}, nil
}

func parseDateField(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, validationError(name + " must be YYYY-MM-DD")
	}
	return &parsed, nil
}

func (s *Service) indexProject(project store.Project) {
	if s.search == nil {
		return
	}
	s.search.IndexProject(search.ProjectRecord{
		ID:     project.ID,
		Title:  project.Title,
		Notes:  project.Notes,
		Stack:  project.Stack,
		Status: project.Status,
	})
}

type TaskInput struct {
	Title      string `json:"title"`
	Done       *bool  `json:"done"`
	Percentage *int   `json:"percentage"`
	SortOrder  *int   `json:"sort_order"`
}

func (s *Service) CreateTask(ctx context.Context, projectID string, input TaskInput) (map[string]any, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, validationError("title is required")
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	record := store.Task{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Title:      strings.TrimSpace(input.Title),
		Percentage: 20,
	}
	if input.Done != nil {
		record.Done = *input.Done
	}
	if input.Percentage != nil {
		record.Percentage = *input.Percentage
	}
	if input.SortOrder != nil {
		record.SortOrder = *input.SortOrder
	}

	inserted, err := s.store.InsertTask(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return taskPayload(inserted), nil
}

func (s *Service) ListTasks(ctx context.Context, projectID string) ([]map[string]any, error) {
	tasks, err := s.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		payloads = append(payloads, taskPayload(task))
	}
	return payloads, nil
}

func (s *Service) UpdateTask(ctx context.Context, taskID string, input TaskInput) (map[string]any, error) {
	record, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(input.Title) != "" {
		record.Title = strings.TrimSpace(input.Title)
	}
	if input.Done != nil {
		record.Done = *input.Done
	}
	if input.Percentage != nil {
		record.Percentage = *input.Percentage
	}
	if input.SortOrder != nil {
		record.SortOrder = *input.SortOrder
	}

	updated, err := s.store.UpdateTask(ctx, record)
	if err != nil {
		return nil, err
	}
	return taskPayload(updated), nil
}

func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	return s.store.DeleteTask(ctx, taskID)
}

// ── Search ──

func (s *Service) Search(ctx context.Context, text string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{Text: text, Limit: limit, Offset: offset}), nil
}

// ── Payload shaping ──

func projectPayload(project store.Project) map[string]any {
	roadmap := project.Roadmap
	if len(roadmap) == 0 {
		roadmap = json.RawMessage(`[]`)
	}
	return map[string]any{
		"id":          project.ID,
		"title":       project.Title,
		"description": project.Description,
		"stack":       project.Stack,
		"status":      project.Status,
		"percentage":  project.Percentage,
		"start_date":  formatDate(project.StartDate),
		"end_date":    formatDate(project.EndDate),
		"notes":       project.Notes,
		"roadmap":     roadmap,
		"created_at":  project.CreatedAt,
		"updated_at":  project.UpdatedAt,
	}
}

func taskPayload(task store.Task) map[string]any {
	return map[string]any{
		"id":         task.ID,
		"project_id": task.ProjectID,
		"title":      task.Title,
		"done":       task.Done,
		"percentage": task.Percentage,
		"sort_order": task.SortOrder,
		"created_at": task.CreatedAt,
		"updated_at": task.UpdatedAt,
	}
}

func sessionPayload(session store.ProjectSession) map[string]any {
	return map[string]any{
		"id":                 session.ID,
		"project_id":         session.ProjectID,
		"calendly_event_id":  session.CalendlyEventID,
		"scheduled_at":       session.ScheduledAt,
		"completed_at":       session.CompletedAt,
		"progress_reported":  session.ProgressReported,
		"blockers":           session.Blockers,
		"needs_review":       session.NeedsReview,
		"changes_since_last": session.ChangesSinceLast,
		"target_milestone":   session.TargetMilestone,
		"health_status":      session.HealthStatus,
		"risk_level":         session.RiskLevel,
		"timeline_alignment": session.TimelineAlignment,
		"delay_analysis":     session.DelayAnalysis,
		"recommendations":    session.Recommendations,
		"suggested_focus":    session.SuggestedFocus,
		"action_plan":        session.ActionPlan,
		"adjusted_end_date":  session.AdjustedEndDate,
		"session_summary":    session.SessionSummary,
		"next_milestone":     session.NextMilestone,
		"created_at":         session.CreatedAt,
	}
}

func formatDate(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.Format("2006-01-02")
}
