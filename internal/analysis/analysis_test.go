package analysis

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/688-png/dev-partner/internal/store"
)

type stubClient struct {
	content string
	err     error
	prompts []string
}

func (s *stubClient) Complete(_ context.Context, _, user string) (string, error) {
	s.prompts = append(s.prompts, user)
	return s.content, s.err
}

func TestGenerateParsesWellFormedResponse(t *testing.T) {
	client := &stubClient{content: `{
		"health_status": "critical",
		"risk_level": "high",
		"timeline_alignment": "behind",
		"delay_analysis": "Two weeks behind due to integration issues",
		"recommendations": ["Cut scope"],
		"suggested_focus": "Integration tests",
		"action_plan": ["Fix CI"],
		"adjusted_end_date": "2025-03-01",
		"session_summary": "Summary",
		"next_milestone": "Beta"
	}`}
	g := NewGenerator(client)

	got := g.Generate(context.Background(), nil, SessionInput{ProgressReported: 30})

	if got.HealthStatus != "critical" || got.RiskLevel != "high" || got.TimelineAlignment != "behind" {
		t.Fatalf("unexpected analysis: %+v", got)
	}
	if got.AdjustedEndDate == nil || *got.AdjustedEndDate != "2025-03-01" {
		t.Fatalf("expected adjusted end date kept, got %v", got.AdjustedEndDate)
	}
}

func TestGenerateDefaultsMissingFields(t *testing.T) {
	client := &stubClient{content: `{"delay_analysis": "fine"}`}
	g := NewGenerator(client)

	got := g.Generate(context.Background(), nil, SessionInput{})

	if got.HealthStatus != "at-risk" {
		t.Fatalf("expected default health_status at-risk, got %q", got.HealthStatus)
	}
	if got.RiskLevel != "medium" {
		t.Fatalf("expected default risk_level medium, got %q", got.RiskLevel)
	}
	if got.TimelineAlignment != "on-track" {
		t.Fatalf("expected default timeline_alignment on-track, got %q", got.TimelineAlignment)
	}
	if got.Recommendations == nil || len(got.Recommendations) != 0 {
		t.Fatalf("expected empty recommendations list, got %v", got.Recommendations)
	}
	if got.ActionPlan == nil || len(got.ActionPlan) != 0 {
		t.Fatalf("expected empty action plan list, got %v", got.ActionPlan)
	}
	if got.AdjustedEndDate != nil {
		t.Fatalf("expected absent adjusted end date, got %v", *got.AdjustedEndDate)
	}
}

func TestGenerateToleratesFencedResponse(t *testing.T) {
	client := &stubClient{content: "```json\n{\"health_status\":\"healthy\"}\n```"}
	g := NewGenerator(client)

	got := g.Generate(context.Background(), nil, SessionInput{})
	if got.HealthStatus != "healthy" {
		t.Fatalf("expected healthy, got %q", got.HealthStatus)
	}
}

func TestGenerateFallsBackOnClientError(t *testing.T) {
	client := &stubClient{err: errors.New("boom")}
	g := NewGenerator(client)

	input := SessionInput{ProgressReported: 40, Blockers: "API rate limits"}
	got := g.Generate(context.Background(), nil, input)

	want := Fallback(input)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected fallback analysis, got %+v", got)
	}
}

func TestGenerateFallsBackOnUnparsableContent(t *testing.T) {
	client := &stubClient{content: "I cannot produce JSON today, sorry."}
	g := NewGenerator(client)

	got := g.Generate(context.Background(), nil, SessionInput{ProgressReported: 80})
	if got.HealthStatus != "healthy" {
		t.Fatalf("expected fallback healthy at 80%% with no blockers, got %q", got.HealthStatus)
	}
}

func TestGeneratePromptIncludesProjectContext(t *testing.T) {
	client := &stubClient{content: `{}`}
	g := NewGenerator(client)
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	project := &store.Project{
		Title:      "Tracker",
		Stack:      "MERN",
		Status:     "in-progress",
		Percentage: 35,
		StartDate:  &start,
	}

	g.Generate(context.Background(), project, SessionInput{ProgressReported: 40})

	if len(client.prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(client.prompts))
	}
	prompt := client.prompts[0]
	for _, want := range []string{"Tracker", "MERN", "2025-01-15", "40%"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGeneratePromptNotesMissingProject(t *testing.T) {
	client := &stubClient{content: `{}`}
	g := NewGenerator(client)

	g.Generate(context.Background(), nil, SessionInput{})

	if !strings.Contains(client.prompts[0], "No project linked") {
		t.Fatalf("prompt should note missing project:\n%s", client.prompts[0])
	}
}

func TestFallbackHeuristic(t *testing.T) {
	cases := []struct {
		name       string
		input      SessionInput
		health     string
		risk       string
		delayHas   string
	}{
		{
			name:     "blockers force at-risk medium",
			input:    SessionInput{ProgressReported: 90, Blockers: "API rate limits"},
			health:   "at-risk",
			risk:     "medium",
			delayHas: "API rate limits",
		},
		{
			name:     "high progress no blockers is healthy",
			input:    SessionInput{ProgressReported: 50},
			health:   "healthy",
			risk:     "low",
			delayHas: "No delays detected",
		},
		{
			name:     "low progress no blockers is at-risk",
			input:    SessionInput{ProgressReported: 49},
			health:   "at-risk",
			risk:     "low",
			delayHas: "No delays detected",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Fallback(tc.input)
			if got.HealthStatus != tc.health {
				t.Fatalf("health = %q, want %q", got.HealthStatus, tc.health)
			}
			if got.RiskLevel != tc.risk {
				t.Fatalf("risk = %q, want %q", got.RiskLevel, tc.risk)
			}
			if !strings.Contains(got.DelayAnalysis, tc.delayHas) {
				t.Fatalf("delay analysis %q missing %q", got.DelayAnalysis, tc.delayHas)
			}
			if got.TimelineAlignment != "on-track" {
				t.Fatalf("timeline = %q, want on-track", got.TimelineAlignment)
			}
			if len(got.Recommendations) != 3 || len(got.ActionPlan) != 4 {
				t.Fatalf("expected stock lists of 3 and 4 entries, got %d and %d",
					len(got.Recommendations), len(got.ActionPlan))
			}
		})
	}
}

func TestFallbackIsDeterministic(t *testing.T) {
	input := SessionInput{ProgressReported: 40, Blockers: "API rate limits", NeedsReview: "auth flow"}
	first := Fallback(input)
	for i := 0; i < 5; i++ {
		if got := Fallback(input); !reflect.DeepEqual(got, first) {
			t.Fatalf("fallback not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestSanitizeEndDate(t *testing.T) {
	cases := map[string]*string{
		"2025-03-01": strPtr("2025-03-01"),
		"null":       nil,
		"None":       nil,
		"":           nil,
		"March 1":    nil,
		"2025-3-1":   nil,
		"2025-03-01T00:00:00Z": nil,
		// pattern match only, not calendar validity
		"2025-02-31": strPtr("2025-02-31"),
	}
	for input, want := range cases {
		got := SanitizeEndDate(input)
		switch {
		case want == nil && got != nil:
			t.Fatalf("SanitizeEndDate(%q) = %q, want absent", input, *got)
		case want != nil && (got == nil || *got != *want):
			t.Fatalf("SanitizeEndDate(%q) = %v, want %q", input, got, *want)
		}
	}
}

func strPtr(s string) *string { return &s }
