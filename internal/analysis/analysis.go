// Package analysis derives project-health judgments from a review session,
// via the AI gateway when available and a deterministic heuristic otherwise.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/688-png/dev-partner/internal/ai"
	"github.com/688-png/dev-partner/internal/store"
)

type Analysis struct {
	HealthStatus      string   `json:"health_status"`
	RiskLevel         string   `json:"risk_level"`
	TimelineAlignment string   `json:"timeline_alignment"`
	DelayAnalysis     string   `json:"delay_analysis"`
	Recommendations   []string `json:"recommendations"`
	SuggestedFocus    string   `json:"suggested_focus"`
	ActionPlan        []string `json:"action_plan"`
	AdjustedEndDate   *string  `json:"adjusted_end_date"`
	SessionSummary    string   `json:"session_summary"`
	NextMilestone     string   `json:"next_milestone"`
}

// SessionInput holds the fields reported in one review session, already
// normalized from either request shape.
type SessionInput struct {
	ProgressReported int
	Blockers         string
	NeedsReview      string
	ChangesSinceLast string
	TargetMilestone  string
}

type completionClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Generator struct {
	client completionClient
}

func NewGenerator(client completionClient) *Generator {
	return &Generator{client: client}
}

const systemPrompt = "You are a senior project manager AI. Always respond with valid JSON only."

// Generate always returns a fully populated analysis. Any failure on the AI
// path, including a missing credential, gateway rate limits and unparsable
// output, degrades to the deterministic fallback instead of surfacing an
// error, so a review session is never lost to a flaky upstream.
func (g *Generator) Generate(ctx context.Context, project *store.Project, input SessionInput) Analysis {
	content, err := g.client.Complete(ctx, systemPrompt, buildPrompt(project, input))
	if err != nil {
		log.Printf("analysis: ai path unavailable, using fallback: %v", err)
		return Fallback(input)
	}

	raw, ok := ai.ExtractJSONObject(content)
	if !ok {
		log.Printf("analysis: no JSON object in ai response, using fallback")
		return Fallback(input)
	}

	parsed, err := parse(raw)
	if err != nil {
		log.Printf("analysis: malformed ai response, using fallback: %v", err)
		return Fallback(input)
	}
	return parsed
}

func buildPrompt(project *store.Project, input SessionInput) string {
	var b strings.Builder
	b.WriteString("You are a project management AI. Analyze this project review session and provide actionable insights.\n\n")
	b.WriteString("PROJECT DETAILS:\n")
	if project != nil {
		fmt.Fprintf(&b, "- Name: %s\n", project.Title)
		fmt.Fprintf(&b, "- Stack: %s\n", project.Stack)
		fmt.Fprintf(&b, "- Status: %s\n", project.Status)
		fmt.Fprintf(&b, "- Current Progress: %d%%\n", project.Percentage)
		fmt.Fprintf(&b, "- Start Date: %s\n", dateOr(project.StartDate, "Not set"))
		fmt.Fprintf(&b, "- Target End Date: %s\n", dateOr(project.EndDate, "Not set"))
		fmt.Fprintf(&b, "- Description: %s\n", textOr(project.Description, "None"))
	} else {
		b.WriteString("No project linked - analyzing based on reported data only.\n")
	}
	b.WriteString("\nSESSION FORM RESPONSES:\n")
	fmt.Fprintf(&b, "- Reported Progress: %d%%\n", input.ProgressReported)
	fmt.Fprintf(&b, "- Blockers: %s\n", textOr(input.Blockers, "None reported"))
	fmt.Fprintf(&b, "- Needs Review: %s\n", textOr(input.NeedsReview, "Nothing specific"))
	fmt.Fprintf(&b, "- Changes Since Last Session: %s\n", textOr(input.ChangesSinceLast, "None reported"))
	fmt.Fprintf(&b, "- Target Milestone: %s\n", textOr(input.TargetMilestone, "Not specified"))
	b.WriteString(`
Provide analysis in this exact JSON format:
{
  "health_status": "healthy" | "at-risk" | "critical",
  "risk_level": "low" | "medium" | "high",
  "timeline_alignment": "ahead" | "on-track" | "behind",
  "delay_analysis": "Brief analysis of any delays and their causes",
  "recommendations": ["Specific recommendation 1", "Specific recommendation 2", "Specific recommendation 3"],
  "suggested_focus": "The single most important area to focus on next",
  "action_plan": ["Action item 1", "Action item 2", "Action item 3", "Action item 4"],
  "adjusted_end_date": "YYYY-MM-DD or null if no adjustment needed",
  "session_summary": "2-3 sentence summary of this review session",
  "next_milestone": "Clear, measurable milestone for the next session"
}`)
	return b.String()
}

func parse(raw string) (Analysis, error) {
	var decoded struct {
		HealthStatus      string   `json:"health_status"`
		RiskLevel         string   `json:"risk_level"`
		TimelineAlignment string   `json:"timeline_alignment"`
		DelayAnalysis     string   `json:"delay_analysis"`
		Recommendations   []string `json:"recommendations"`
		SuggestedFocus    string   `json:"suggested_focus"`
		ActionPlan        []string `json:"action_plan"`
		AdjustedEndDate   string   `json:"adjusted_end_date"`
		SessionSummary    string   `json:"session_summary"`
		NextMilestone     string   `json:"next_milestone"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return Analysis{}, fmt.Errorf("parse analysis object: %w", err)
	}

	return Analysis{
		HealthStatus:      defaultIfEmpty(decoded.HealthStatus, "at-risk"),
		RiskLevel:         defaultIfEmpty(decoded.RiskLevel, "medium"),
		TimelineAlignment: defaultIfEmpty(decoded.TimelineAlignment, "on-track"),
		DelayAnalysis:     decoded.DelayAnalysis,
		Recommendations:   nonNil(decoded.Recommendations),
		SuggestedFocus:    decoded.SuggestedFocus,
		ActionPlan:        nonNil(decoded.ActionPlan),
		AdjustedEndDate:   SanitizeEndDate(decoded.AdjustedEndDate),
		SessionSummary:    decoded.SessionSummary,
		NextMilestone:     decoded.NextMilestone,
	}, nil
}

var endDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// SanitizeEndDate keeps only a literal YYYY-MM-DD value. Models sometimes emit
// the strings "null" or "None" instead of a JSON null; those and anything else
// off-pattern become absent.
func SanitizeEndDate(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" || value == "null" || value == "None" {
		return nil
	}
	if !endDatePattern.MatchString(value) {
		return nil
	}
	return &value
}

// Fallback is the deterministic heuristic used whenever the AI path fails.
// It is a pure function of its input.
func Fallback(input SessionInput) Analysis {
	hasBlockers := input.Blockers != ""

	healthStatus := "at-risk"
	if !hasBlockers && input.ProgressReported >= 50 {
		healthStatus = "healthy"
	}

	riskLevel := "low"
	if hasBlockers {
		riskLevel = "medium"
	}

	delayAnalysis := "No delays detected"
	if hasBlockers {
		delayAnalysis = "Blockers reported: " + input.Blockers
	}

	summary := fmt.Sprintf("Project at %d%% completion. On track for current milestone.", input.ProgressReported)
	if hasBlockers {
		summary = fmt.Sprintf("Project at %d%% completion. Blockers identified that need attention.", input.ProgressReported)
	}

	return Analysis{
		HealthStatus:      healthStatus,
		RiskLevel:         riskLevel,
		TimelineAlignment: "on-track",
		DelayAnalysis:     delayAnalysis,
		Recommendations: []string{
			"Review current blockers and create action items",
			"Update task breakdown for remaining work",
			"Schedule follow-up session to track progress",
		},
		SuggestedFocus: textOr(input.NeedsReview, "Continue with current priorities"),
		ActionPlan: []string{
			"Address reported blockers",
			"Update project documentation",
			"Review and adjust timeline if needed",
			"Prepare for next milestone",
		},
		AdjustedEndDate: nil,
		SessionSummary:  summary,
		NextMilestone:   textOr(input.TargetMilestone, "Define next milestone in upcoming session"),
	}
}

func defaultIfEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func textOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func dateOr(value *time.Time, fallback string) string {
	if value == nil {
		return fallback
	}
	return value.Format("2006-01-02")
}
