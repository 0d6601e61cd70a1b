package questions

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thinkhire/interview-pipeline/clients"
)

const DefaultAdaptiveTimeout = 10 * time.Second

// Generator is the adaptive question endpoint.
type Generator interface {
	GenerateAdaptiveQuestion(ctx context.Context, req clients.AdaptiveReq) (*clients.AdaptiveResp, error)
}

// Outcome is what the adaptive backend is told about the last answer.
type Outcome struct {
	Question   string
	Answer     string
	Overall    int
	Scores     map[string]int
	Weaknesses []string
}

// Adaptive asks the backend for a follow-up question and falls back to the
// picker when the call fails, times out or comes back empty.
type Adaptive struct {
	Client  Generator
	Picker  *Picker
	Timeout time.Duration
	Log     logrus.FieldLogger
}

func NewAdaptive(c Generator, p *Picker, timeout time.Duration, log logrus.FieldLogger) *Adaptive {
	if timeout <= 0 {
		timeout = DefaultAdaptiveTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Adaptive{Client: c, Picker: p, Timeout: timeout, Log: log.WithField("component", "questions")}
}

// Next returns the next question for domain and whether it came from the
// backend.
func (a *Adaptive) Next(ctx context.Context, domain string, last Outcome) (string, bool) {
	if a.Client != nil {
		if q, ok := a.ask(ctx, last); ok {
			a.Picker.Use(q)
			return q, true
		}
	}
	q := a.Picker.Fallback(domain, last.Overall)
	a.Log.WithFields(logrus.Fields{
		"domain": domain,
		"tier":   TierFor(last.Overall),
	}).Debug("using bank question")
	return q, false
}

func (a *Adaptive) ask(ctx context.Context, last Outcome) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	resp, err := a.Client.GenerateAdaptiveQuestion(ctx, clients.AdaptiveReq{
		PreviousQuestion: last.Question,
		UserAnswer:       last.Answer,
		Scores:           last.Scores,
		Weaknesses:       last.Weaknesses,
	})
	if err != nil {
		a.Log.WithError(err).Warn("adaptive question unavailable")
		return "", false
	}
	q := strings.TrimSpace(resp.NextQuestion)
	if q == "" {
		a.Log.Warn("adaptive question empty")
		return "", false
	}
	a.Log.WithFields(logrus.Fields{"category": resp.Category, "action": resp.Action}).Debug("adaptive question")
	return q, true
}
