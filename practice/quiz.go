package practice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thinkhire/interview-pipeline/clients"
	"github.com/thinkhire/interview-pipeline/questions"
	"github.com/thinkhire/interview-pipeline/store"
)

// TextAnalyzer is the typed answer endpoint.
type TextAnalyzer interface {
	AnalyzeTextAnswer(ctx context.Context, req clients.TextAnswerReq) (*clients.TextAnswerResp, error)
}

// KnowledgeCheck walks a domain's questions in order, wrapping around.
type KnowledgeCheck struct {
	client TextAnalyzer
	bank   *questions.Source
	store  *store.Session
	log    logrus.FieldLogger
	now    func() time.Time

	mu     sync.Mutex
	domain string
	index  int
}

func NewKnowledgeCheck(c TextAnalyzer, bank *questions.Source, st *store.Session, log logrus.FieldLogger) *KnowledgeCheck {
	if bank == nil {
		bank = questions.NewSource(questions.Builtin())
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &KnowledgeCheck{
		client: c,
		bank:   bank,
		store:  st,
		log:    log.WithField("component", "quiz"),
		now:    time.Now,
	}
}

// SelectDomain switches domain and starts again from its first question.
func (k *KnowledgeCheck) SelectDomain(domain string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.domain = domain
	k.index = 0
}

// Question returns the current question and its 0-based index.
func (k *KnowledgeCheck) Question() (string, int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.bank.Bank().RoundRobin(k.domain, k.index), k.index
}

func (k *KnowledgeCheck) Advance() {
	k.mu.Lock()
	k.index++
	k.mu.Unlock()
}

// Submit scores answer to the current question and records the score in the
// session history. Backend failures are returned to the caller.
func (k *KnowledgeCheck) Submit(ctx context.Context, answer string) (*Result, *clients.TextAnswerResp, error) {
	k.mu.Lock()
	domain := k.domain
	k.mu.Unlock()

	if domain == "" {
		return nil, nil, &ValidationError{Field: "domain"}
	}
	if strings.TrimSpace(answer) == "" {
		return nil, nil, &ValidationError{Field: "answer"}
	}
	q, _ := k.Question()

	resp, err := k.client.AnalyzeTextAnswer(ctx, clients.TextAnswerReq{
		Question: q,
		Answer:   answer,
		Domain:   domain,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("analyze answer: %w", err)
	}

	res := &Result{
		Question: q,
		Score: meanOf(
			clients.Int(resp.TechnicalAccuracy, 0), clients.Int(resp.ClarityStructure, 0), clients.Int(resp.DepthOfKnowledge, 0),
			clients.Int(resp.Communication, 0), clients.Int(resp.Reasoning, 0),
		),
		Strengths:   resp.Strengths,
		Weaknesses:  resp.Improvements,
		Suggestions: resp.Suggestions,
	}
	if k.store != nil {
		err := k.store.AppendSessionScore(store.SessionScore{Score: res.Score, Timestamp: k.now(), Question: q})
		if err != nil {
			k.log.WithError(err).Warn("saving session score")
		}
	}
	k.log.WithFields(logrus.Fields{"domain": domain, "score": res.Score}).Info("answer scored")
	return res, resp, nil
}
