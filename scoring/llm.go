package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/thinkhire/interview-pipeline/clients"
)

// Completer sends one system/user prompt pair to a language model and
// returns its text reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const systemPrompt = `You are an interview coach scoring a candidate's spoken answer.
Reply with a single JSON object and nothing else, using exactly these fields:
{"technical_accuracy":0-100,"clarity_structure":0-100,"depth_of_knowledge":0-100,
"communication":0-100,"confidence":0-100,"reasoning":0-100,"emotion":0-100,
"strengths":[string],"improvements":[string],"suggestions":[string]}
Scores are integers. Keep each list to at most four short items.`

// LLMScorer scores answers by prompting a language model for a strict JSON
// verdict. Behavioral dimensions come from the captured windows because the
// model never sees the video.
type LLMScorer struct {
	Model  Completer
	Source Source
}

func (s *LLMScorer) Score(ctx context.Context, sub Submission) (*Analysis, error) {
	endpoint := string(s.Source)
	reply, err := s.Model.Complete(ctx, systemPrompt, userPrompt(sub))
	if err != nil {
		return nil, &AnalysisError{Endpoint: endpoint, Err: err}
	}

	var v llmVerdict
	raw := extractJSON(reply)
	if raw == "" {
		return nil, &AnalysisError{Endpoint: endpoint, Err: fmt.Errorf("no JSON in reply: %w", clients.ErrInvalidResponse)}
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, &AnalysisError{Endpoint: endpoint, Err: fmt.Errorf("%v: %w", err, clients.ErrInvalidResponse)}
	}
	if err := v.validate(); err != nil {
		return nil, &AnalysisError{Endpoint: endpoint, Err: err}
	}

	scores := Scores{}
	for dim, p := range v.fields() {
		if p != nil {
			scores[dim] = *p
		}
	}
	if len(sub.Windows) > 0 {
		m := sub.Metrics()
		scores[EyeContact] = int(m.EyeContact + 0.5)
		scores[BodyLanguage] = int(m.BodyLanguage() + 0.5)
	}

	a := &Analysis{
		Scores:      scores,
		Strengths:   capList(v.Strengths),
		Weaknesses:  capList(v.Improvements),
		Suggestions: v.Suggestions,
		WordCount:   len(strings.Fields(sub.Answer)),
		Source:      s.Source,
	}
	return a.finish(), nil
}

type llmVerdict struct {
	TechnicalAccuracy *int     `json:"technical_accuracy"`
	ClarityStructure  *int     `json:"clarity_structure"`
	DepthOfKnowledge  *int     `json:"depth_of_knowledge"`
	Communication     *int     `json:"communication"`
	Confidence        *int     `json:"confidence"`
	Reasoning         *int     `json:"reasoning"`
	Emotion           *int     `json:"emotion"`
	Strengths         []string `json:"strengths"`
	Improvements      []string `json:"improvements"`
	Suggestions       []string `json:"suggestions"`
}

func (v *llmVerdict) fields() map[string]*int {
	return map[string]*int{
		TechnicalAccuracy: v.TechnicalAccuracy,
		ClarityStructure:  v.ClarityStructure,
		DepthOfKnowledge:  v.DepthOfKnowledge,
		Communication:     v.Communication,
		Confidence:        v.Confidence,
		Reasoning:         v.Reasoning,
		Emotion:           v.Emotion,
	}
}

func (v *llmVerdict) validate() error {
	var missing []string
	for _, dim := range []string{TechnicalAccuracy, ClarityStructure, Communication, Confidence} {
		if v.fields()[dim] == nil {
			missing = append(missing, dim)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s: %w", strings.Join(missing, ", "), clients.ErrInvalidResponse)
	}
	return nil
}

func userPrompt(sub Submission) string {
	var b strings.Builder
	if sub.Domain != "" {
		fmt.Fprintf(&b, "Interview domain: %s\n", sub.Domain)
	}
	fmt.Fprintf(&b, "Question: %s\n", strings.TrimSpace(sub.Question))
	answer := strings.TrimSpace(sub.Answer)
	if answer == "" {
		answer = "(no answer given)"
	}
	fmt.Fprintf(&b, "Answer: %s\n", answer)
	return b.String()
}

// extractJSON pulls the first JSON object out of a model reply, tolerating
// code fences and surrounding prose.
func extractJSON(s string) string {
	raw := strings.TrimSpace(s)
	if strings.HasPrefix(raw, "```") {
		rest := strings.TrimSpace(strings.TrimPrefix(raw, "```"))
		if i := strings.Index(rest, "\n"); i >= 0 {
			rest = rest[i+1:]
		}
		if j := strings.LastIndex(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		raw = strings.TrimSpace(rest)
	}
	if strings.HasPrefix(raw, "{") {
		return raw
	}
	if i := strings.Index(raw, "{"); i >= 0 {
		if j := strings.LastIndex(raw, "}"); j > i {
			return raw[i : j+1]
		}
	}
	return ""
}

var errEmptyReply = errors.New("model returned an empty reply")
