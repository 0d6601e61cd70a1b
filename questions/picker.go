package questions

import (
	"math/rand"
	"sync"
	"time"
)

// Tier is a difficulty band chosen from the last overall score.
type Tier int

const (
	Easy Tier = iota
	Medium
	Hard
)

func (t Tier) String() string {
	switch t {
	case Hard:
		return "hard"
	case Medium:
		return "medium"
	}
	return "easy"
}

// TierFor maps an overall score on the 0-100 scale to a tier.
func TierFor(overall int) Tier {
	switch {
	case overall >= 80:
		return Hard
	case overall >= 60:
		return Medium
	}
	return Easy
}

// Picker chooses fallback questions from a bank, never repeating one until
// the domain is exhausted.
type Picker struct {
	src *Source

	mu   sync.Mutex
	rng  *rand.Rand
	used map[string]bool
}

func NewPicker(src *Source, seed int64) *Picker {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Picker{src: src, rng: rand.New(rand.NewSource(seed)), used: make(map[string]bool)}
}

// Use marks q as asked.
func (p *Picker) Use(q string) {
	p.mu.Lock()
	p.used[q] = true
	p.mu.Unlock()
}

// Reset forgets every asked question.
func (p *Picker) Reset() {
	p.mu.Lock()
	p.used = make(map[string]bool)
	p.mu.Unlock()
}

// Fallback picks the next question for domain from the tier matching overall.
// Tiers index into the questions not asked yet: hard from the fourth on,
// medium the second to fourth, easy the first two. An empty tier widens to
// every remaining question. The pick is marked as used.
func (p *Picker) Fallback(domain string, overall int) string {
	qs := p.src.Bank().Questions(domain)
	if len(qs) == 0 {
		return Opener
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var avail []string
	for _, q := range qs {
		if !p.used[q] {
			avail = append(avail, q)
		}
	}
	if len(avail) == 0 {
		p.used = make(map[string]bool)
		avail = append(avail, qs...)
	}

	lo, hi := tierRange(TierFor(overall), len(avail))
	pool := avail[lo:hi]
	if len(pool) == 0 {
		pool = avail
	}
	q := pool[p.rng.Intn(len(pool))]
	p.used[q] = true
	return q
}

func tierRange(t Tier, n int) (lo, hi int) {
	switch t {
	case Hard:
		lo, hi = 3, n
	case Medium:
		lo, hi = 1, 4
	default:
		lo, hi = 0, 2
	}
	if lo > n {
		lo = n
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}
