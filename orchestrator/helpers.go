package orchestrator

import (
	"math"
	"sort"

	"github.com/thinkhire/interview-pipeline/features"
	"github.com/thinkhire/interview-pipeline/questions"
	"github.com/thinkhire/interview-pipeline/scoring"
)

// retain keeps the latest n windows.
func retain(ws []features.Window, n int) []features.Window {
	if len(ws) <= n {
		return ws
	}
	return append(ws[:0:0], ws[len(ws)-n:]...)
}

func outcome(ps scoring.PerformanceScore) questions.Outcome {
	return questions.Outcome{
		Question:   ps.Question,
		Answer:     ps.Answer,
		Overall:    ps.Overall,
		Scores:     map[string]int(ps.Scores),
		Weaknesses: ps.Weaknesses,
	}
}

// Report summarises the answers scored so far.
func (o *Orchestrator) Report() Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Summarize(o.sessionID, o.cfg.Domain, o.scores)
}

const topWeaknesses = 3

// Summarize reports on scores: the mean overall score, the mean of each
// dimension and the most frequent weaknesses.
func Summarize(sessionID, domain string, scores []scoring.PerformanceScore) Report {
	r := Report{
		SessionID:  sessionID,
		Domain:     domain,
		Questions:  len(scores),
		Dimensions: map[string]int{},
		Weaknesses: []string{},
		Scores:     append([]scoring.PerformanceScore(nil), scores...),
	}
	if len(scores) == 0 {
		return r
	}

	total := 0
	sums := map[string]int{}
	counts := map[string]int{}
	seen := map[string]int{}
	for _, ps := range scores {
		total += ps.Overall
		for k, v := range ps.Scores {
			sums[k] += v
			counts[k]++
		}
		for _, w := range ps.Weaknesses {
			seen[w]++
		}
	}
	r.Average = int(math.Round(float64(total) / float64(len(scores))))
	for k, s := range sums {
		r.Dimensions[k] = int(math.Round(float64(s) / float64(counts[k])))
	}

	for w := range seen {
		r.Weaknesses = append(r.Weaknesses, w)
	}
	// most frequent first, ties alphabetical
	sort.Slice(r.Weaknesses, func(i, j int) bool {
		a, b := r.Weaknesses[i], r.Weaknesses[j]
		if seen[a] != seen[b] {
			return seen[a] > seen[b]
		}
		return a < b
	})
	if len(r.Weaknesses) > topWeaknesses {
		r.Weaknesses = r.Weaknesses[:topWeaknesses]
	}
	return r
}
