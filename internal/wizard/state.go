// Package wizard drives a requirements analysis through its five stages:
// project info, initial questions, follow-up questions, summary and final
// description.
package wizard

import (
	"strings"
	"time"

	"vergabeflow/internal/types"
)

// =============================================================================
// STAGES
// =============================================================================

// Stage is the current step of the analysis.
type Stage int

const (
	StageProjectInfo Stage = iota
	StageInitialQuestions
	StageFollowUpQuestions
	StageSummary
	StageFinalDescription
)

func (s Stage) String() string {
	switch s {
	case StageProjectInfo:
		return "project_info"
	case StageInitialQuestions:
		return "initial_questions"
	case StageFollowUpQuestions:
		return "follow_up_questions"
	case StageSummary:
		return "summary"
	case StageFinalDescription:
		return "final_description"
	default:
		return "unknown"
	}
}

// Title is the heading shown to the user for the stage.
func (s Stage) Title() string {
	switch s {
	case StageProjectInfo:
		return "Projektinformation"
	case StageInitialQuestions:
		return "Initiale Fragen"
	case StageFollowUpQuestions:
		return "Weiterführende Fragen"
	case StageSummary:
		return "Zusammenfassung"
	case StageFinalDescription:
		return "Bedarfsbeschreibung"
	default:
		return ""
	}
}

// Step returns the 1-based position of the stage.
func (s Stage) Step() int { return int(s) + 1 }

// StageCount is the number of stages.
const StageCount = 5

// =============================================================================
// STATE
// =============================================================================

// State is everything accumulated during one analysis.
type State struct {
	AnalysisID       string
	Stage            Stage
	ProcurementType  string
	Description      string
	Questions        []types.Question
	Answers          []types.Answer
	FinalDescription string
	UpdatedAt        time.Time
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Questions = nil
	if s.Questions != nil {
		out.Questions = make([]types.Question, len(s.Questions))
		for i, q := range s.Questions {
			q.Options = append([]string(nil), q.Options...)
			out.Questions[i] = q
		}
	}
	out.Answers = append([]types.Answer(nil), s.Answers...)
	return out
}

// Pairs joins every question with its answer.
func (s State) Pairs() []types.QAPair {
	return types.Pair(s.Questions, s.Answers)
}

// AnsweredCount counts questions with a non-blank answer.
func (s State) AnsweredCount() int {
	n := 0
	for _, q := range s.Questions {
		if a, ok := types.FindAnswer(s.Answers, q.ID); ok && strings.TrimSpace(a.Text) != "" {
			n++
		}
	}
	return n
}

// PendingQuestion is a question the user is asked to answer now, with any
// answer already on record.
type PendingQuestion struct {
	types.Question
	Prefill string
}

// pending returns the questions for the current stage. In the initial round
// that is every question so earlier answers can be revised; in the follow-up
// round it is the unanswered tail.
func (s State) pending() []PendingQuestion {
	var qs []types.Question
	switch s.Stage {
	case StageInitialQuestions:
		qs = s.Questions
	case StageFollowUpQuestions:
		start := len(s.Answers)
		if start > len(s.Questions) {
			start = len(s.Questions)
		}
		qs = s.Questions[start:]
	default:
		return nil
	}

	out := make([]PendingQuestion, 0, len(qs))
	for _, q := range qs {
		pq := PendingQuestion{Question: q}
		pq.Options = append([]string(nil), q.Options...)
		if a, ok := types.FindAnswer(s.Answers, q.ID); ok {
			pq.Prefill = a.Text
		}
		out = append(out, pq)
	}
	return out
}
