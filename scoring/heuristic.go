package scoring

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/thinkhire/interview-pipeline/features"
)

const maxFeedback = 4

// band is an inclusive score range.
type band struct{ lo, hi int }

var heuristicBands = map[string]band{
	TechnicalAccuracy: {65, 95},
	ClarityStructure:  {70, 95},
	DepthOfKnowledge:  {60, 95},
	Communication:     {65, 95},
	Confidence:        {55, 95},
	Reasoning:         {60, 95},
	Emotion:           {60, 95},
}

// emptyBand replaces every content band when nothing was said.
var emptyBand = band{10, 30}

// HeuristicScorer produces plausible scores without any backend. Content
// dimensions are drawn from fixed bands; eye contact and body language come
// from the captured windows.
type HeuristicScorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewHeuristicScorer seeds the scorer. A zero seed uses the clock.
func NewHeuristicScorer(seed int64) *HeuristicScorer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &HeuristicScorer{rng: rand.New(rand.NewSource(seed))}
}

func (h *HeuristicScorer) Score(ctx context.Context, sub Submission) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	empty := strings.TrimSpace(sub.Answer) == ""
	scores := make(Scores, len(Dimensions))

	h.mu.Lock()
	for _, dim := range Dimensions {
		b, ok := heuristicBands[dim]
		if !ok {
			continue
		}
		if empty {
			b = emptyBand
		}
		scores[dim] = b.lo + h.rng.Intn(b.hi-b.lo+1)
	}
	h.mu.Unlock()

	m := features.Metrics{EyeContact: 50, HeadStability: 50, Posture: 50, Confidence: 50}
	if len(sub.Windows) > 0 {
		m = sub.Metrics()
	}
	scores[EyeContact] = int(m.EyeContact + 0.5)
	scores[BodyLanguage] = int(m.BodyLanguage() + 0.5)

	strengths, improvements := feedback(scores, m, len(sub.Windows) > 0)
	if empty {
		improvements = append([]string{"Provide an answer to the question before submitting"}, improvements...)
	}

	a := &Analysis{
		Scores:     scores,
		Strengths:  capList(strengths),
		Weaknesses: capList(improvements),
		WordCount:  len(strings.Fields(sub.Answer)),
		Source:     SourceHeuristic,
	}
	return a.finish(), nil
}

func feedback(s Scores, m features.Metrics, video bool) (strengths, improvements []string) {
	praise := func(dim, great, good string) {
		switch v := s[dim]; {
		case v > 80:
			strengths = append(strengths, great)
		case v > 70:
			strengths = append(strengths, good)
		}
	}
	praise(TechnicalAccuracy, "Demonstrated excellent technical knowledge", "Showed solid technical understanding")
	praise(ClarityStructure, "Exceptionally clear communication", "Clear and articulate expression")
	praise(DepthOfKnowledge, "Provided comprehensive, detailed examples", "Showed good depth in explanations")
	praise(Communication, "Strong interpersonal communication skills", "Effective communication style")
	praise(Confidence, "Highly confident presentation", "Confident delivery")

	weak := func(dim, msg string) {
		if s[dim] < 70 {
			improvements = append(improvements, msg)
		}
	}
	weak(TechnicalAccuracy, "Expand on technical details with specific examples")
	weak(ClarityStructure, "Work on structuring responses more clearly")
	weak(DepthOfKnowledge, "Provide more detailed, concrete examples")
	weak(Communication, "Improve pacing and use more engaging language")
	weak(Confidence, "Show more conviction in your responses")

	if !video {
		return strengths, improvements
	}
	switch {
	case m.EyeContact > 85:
		strengths = append(strengths, "Maintained excellent eye contact throughout")
	case m.EyeContact > 75:
		strengths = append(strengths, "Maintained good eye contact")
	case m.EyeContact < 65:
		improvements = append(improvements, "Focus on maintaining more consistent eye contact")
	}
	switch {
	case m.Posture > 85:
		strengths = append(strengths, "Consistently maintained strong posture")
	case m.Posture > 75:
		strengths = append(strengths, "Good posture")
	case m.Posture < 65:
		improvements = append(improvements, "Work on keeping shoulders back and spine straight")
	}
	switch {
	case m.HeadStability > 80:
		strengths = append(strengths, "Natural, engaging head movements")
	case m.HeadStability < 60:
		improvements = append(improvements, "Try to incorporate more natural head movements")
	}
	return strengths, improvements
}

func capList(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	if len(xs) > maxFeedback {
		return xs[:maxFeedback]
	}
	return xs
}
