package app

import (
	"strconv"
	"strings"

	"github.com/688-png/dev-partner/internal/analysis"
)

// QuestionAnswer is one free-text form response from the scheduling event.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// The event envelope carries answers keyed only by the human wording of each
// question, so fields are recovered by substring matching. Each entry lists
// keywords tried in order; the first question containing a keyword wins and
// no match yields an empty answer, never an error.
var sessionFieldRules = []struct {
	keywords []string
	assign   func(input *analysis.SessionInput, answer string)
}{
	{
		keywords: []string{"complete", "progress"},
		assign: func(input *analysis.SessionInput, answer string) {
			input.ProgressReported = parseProgress(answer)
		},
	},
	{
		keywords: []string{"slow", "blocker"},
		assign: func(input *analysis.SessionInput, answer string) {
			input.Blockers = answer
		},
	},
	{
		keywords: []string{"review"},
		assign: func(input *analysis.SessionInput, answer string) {
			input.NeedsReview = answer
		},
	},
	{
		keywords: []string{"change"},
		assign: func(input *analysis.SessionInput, answer string) {
			input.ChangesSinceLast = answer
		},
	},
	{
		keywords: []string{"milestone", "target"},
		assign: func(input *analysis.SessionInput, answer string) {
			input.TargetMilestone = answer
		},
	},
}

// extractSessionInput normalizes a question/answer list into the project name
// and the session-input fields shared with the manual shape.
func extractSessionInput(qa []QuestionAnswer) (projectName string, input analysis.SessionInput) {
	projectName = answerFor(qa, "project")
	for _, rule := range sessionFieldRules {
		rule.assign(&input, firstAnswer(qa, rule.keywords...))
	}
	return projectName, input
}

// answerFor returns the answer of the first Q/A pair whose question contains
// keyword, case-insensitively.
func answerFor(qa []QuestionAnswer, keyword string) string {
	keyword = strings.ToLower(keyword)
	for _, pair := range qa {
		if strings.Contains(strings.ToLower(pair.Question), keyword) {
			return pair.Answer
		}
	}
	return ""
}

func firstAnswer(qa []QuestionAnswer, keywords ...string) string {
	for _, keyword := range keywords {
		if answer := answerFor(qa, keyword); answer != "" {
			return answer
		}
	}
	return ""
}

// parseProgress strips everything but digits and parses the remainder, so
// answers like "65%" or "about 40 percent" resolve to an integer. Unparsable
// answers default to 0.
func parseProgress(answer string) int {
	var digits strings.Builder
	for _, r := range answer {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	value, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return value
}
