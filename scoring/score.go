// Package scoring turns a submitted answer into a PerformanceScore. Scorers are
// strategies: the remote analysis backend, LLM backed scorers and the local
// heuristic, combined through Fallback so a submission always gets a result.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/thinkhire/interview-pipeline/features"
)

// Score dimensions, named as the analysis backend names them.
const (
	TechnicalAccuracy = "technical_accuracy"
	ClarityStructure  = "clarity_structure"
	DepthOfKnowledge  = "depth_of_knowledge"
	Communication     = "communication"
	Confidence        = "confidence"
	Reasoning         = "reasoning"
	Emotion           = "emotion"
	EyeContact        = "eye_contact"
	BodyLanguage      = "body_language"
)

// Dimensions lists every dimension in report order.
var Dimensions = []string{
	TechnicalAccuracy, ClarityStructure, DepthOfKnowledge, Communication,
	Confidence, Reasoning, Emotion, EyeContact, BodyLanguage,
}

// Source tags which strategy produced an analysis.
type Source string

const (
	SourceRemote    Source = "remote"
	SourceHeuristic Source = "heuristic"
	SourceGemini    Source = "gemini"
	SourceGroq      Source = "groq"
)

// Scores maps a dimension to a 0-100 score. Absent dimensions were not
// measured and do not count towards the overall score.
type Scores map[string]int

// Clamp forces every score into [0, 100].
func (s Scores) Clamp() Scores {
	for k, v := range s {
		s[k] = clampInt(v)
	}
	return s
}

// Overall is the rounded unweighted mean of the dimensions present.
func (s Scores) Overall() int {
	if len(s) == 0 {
		return 0
	}
	sum := 0
	for _, v := range s {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(s))))
}

// Keys returns the dimensions present, sorted.
func (s Scores) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Submission is everything captured for one answer.
type Submission struct {
	Question string
	Answer   string
	Domain   string
	Windows  []features.Window
	// Video is the recorded answer, if the capture device produced one.
	Video []byte
}

// Metrics averages the behavioral metrics of the submitted windows.
func (s Submission) Metrics() features.Metrics { return features.Average(s.Windows) }

// Analysis is a scorer's verdict on one submission.
type Analysis struct {
	Scores      Scores
	Overall     int
	Strengths   []string
	Weaknesses  []string
	Suggestions []string
	WordCount   int
	Source      Source
}

// finish clamps the scores and recomputes the overall score from them.
func (a *Analysis) finish() *Analysis {
	a.Scores.Clamp()
	a.Overall = a.Scores.Overall()
	return a
}

// PerformanceScore is the per-question record kept for reporting.
type PerformanceScore struct {
	Question   string    `json:"question" yaml:"question"`
	Answer     string    `json:"answer" yaml:"answer"`
	Scores     Scores    `json:"scores" yaml:"scores"`
	Overall    int       `json:"overallScore" yaml:"overall"`
	Weaknesses []string  `json:"weaknesses" yaml:"weaknesses"`
	Strengths  []string  `json:"strengths,omitempty" yaml:"strengths,omitempty"`
	Source     Source    `json:"source" yaml:"source"`
	At         time.Time `json:"timestamp" yaml:"timestamp"`
}

// Record turns an analysis into a PerformanceScore for sub.
func Record(sub Submission, a *Analysis, at time.Time) PerformanceScore {
	scores := make(Scores, len(a.Scores))
	for k, v := range a.Scores {
		scores[k] = v
	}
	scores.Clamp()
	return PerformanceScore{
		Question:   sub.Question,
		Answer:     sub.Answer,
		Scores:     scores,
		Overall:    scores.Overall(),
		Weaknesses: append([]string{}, a.Weaknesses...),
		Strengths:  append([]string(nil), a.Strengths...),
		Source:     a.Source,
		At:         at,
	}
}

// Scorer analyses a submission. Implementations must honour ctx.
type Scorer interface {
	Score(ctx context.Context, sub Submission) (*Analysis, error)
}

// AnalysisError wraps a failed analysis call: a timeout, a non-2xx answer or
// a response that does not match its schema.
type AnalysisError struct {
	Endpoint string
	Err      error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s: %v", e.Endpoint, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
