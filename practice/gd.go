package practice

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thinkhire/interview-pipeline/clients"
	"github.com/thinkhire/interview-pipeline/questions"
)

const DefaultGDBudget = 2 * time.Minute

// GDAnalyzer is the group discussion endpoint.
type GDAnalyzer interface {
	AnalyzeGD(ctx context.Context, req clients.GDReq) (*clients.GDResp, error)
}

// GroupDiscussion hands out a random topic and scores the answer written for
// it within the time budget.
type GroupDiscussion struct {
	client GDAnalyzer
	bank   *questions.Source
	budget time.Duration
	log    logrus.FieldLogger
	now    func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	topic   string
	started time.Time
}

func NewGroupDiscussion(c GDAnalyzer, bank *questions.Source, seed int64, log logrus.FieldLogger) *GroupDiscussion {
	if bank == nil {
		bank = questions.NewSource(questions.Builtin())
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &GroupDiscussion{
		client: c,
		bank:   bank,
		budget: DefaultGDBudget,
		log:    log.WithField("component", "gd"),
		now:    time.Now,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// NewTopic picks a topic at random and restarts the clock.
func (g *GroupDiscussion) NewTopic() string {
	topics := g.bank.Bank().Topics
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(topics) == 0 {
		g.topic = ""
	} else {
		g.topic = topics[g.rng.Intn(len(topics))]
	}
	g.started = g.now()
	return g.topic
}

func (g *GroupDiscussion) Topic() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.topic
}

// Remaining is the time left in the budget, never negative.
func (g *GroupDiscussion) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	left := g.budget - g.now().Sub(g.started)
	if left < 0 {
		return 0
	}
	return left
}

// Submit scores answer for the current topic. A failing backend yields mock
// feedback rather than an error; only a missing topic or answer is an error.
func (g *GroupDiscussion) Submit(ctx context.Context, answer string) (*Result, error) {
	g.mu.Lock()
	topic := g.topic
	taken := g.now().Sub(g.started)
	g.mu.Unlock()

	if topic == "" {
		return nil, &ValidationError{Field: "topic"}
	}
	if strings.TrimSpace(answer) == "" {
		return nil, &ValidationError{Field: "answer"}
	}
	if taken > g.budget {
		taken = g.budget
	}

	if g.client != nil {
		resp, err := g.client.AnalyzeGD(ctx, clients.GDReq{
			Topic:     topic,
			Answer:    answer,
			TimeTaken: int(taken / time.Second),
		})
		if err == nil {
			return &Result{
				Question: topic,
				Score: meanOf(
					clients.Int(resp.TechnicalAccuracy, 0), clients.Int(resp.ClarityStructure, 0), clients.Int(resp.DepthOfKnowledge, 0),
					clients.Int(resp.Communication, 0), clients.Int(resp.Confidence, 0), clients.Int(resp.Reasoning, 0), clients.Int(resp.Emotion, 0),
				),
				Strengths:   resp.Strengths,
				Weaknesses:  resp.Improvements,
				Suggestions: resp.Suggestions,
			}, nil
		}
		g.log.WithError(err).Warn("group discussion analysis failed, using mock feedback")
	}
	return g.mock(topic), nil
}

func (g *GroupDiscussion) mock(topic string) *Result {
	g.mu.Lock()
	score := 60 + g.rng.Intn(40)
	g.mu.Unlock()
	return &Result{
		Question:    topic,
		Score:       score,
		Strengths:   []string{"Good structure", "Clear points", "Relevant examples"},
		Weaknesses:  []string{"Repetition", "Needs stronger conclusion"},
		Suggestions: []string{"Add more data", "Use real-world examples", "Improve opening statement"},
		Mock:        true,
	}
}
