package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/thinkhire/interview-pipeline/clients"
	"github.com/thinkhire/interview-pipeline/config"
	"github.com/thinkhire/interview-pipeline/questions"
	"github.com/thinkhire/interview-pipeline/scoring"
	"github.com/thinkhire/interview-pipeline/store"
)

func newStore(conf *config.Root) (*store.Session, error) {
	kv, err := store.OpenFile(conf.Store.Path)
	if err != nil {
		return nil, err
	}
	return store.NewSession(kv), nil
}

// newBank returns the question bank, loaded from questions.file when set and
// reloaded whenever that file changes until ctx is done.
func newBank(ctx context.Context, conf *config.Root, log logrus.FieldLogger) (*questions.Source, error) {
	if conf.Questions.File == "" {
		return questions.NewSource(questions.Builtin()), nil
	}
	b, err := questions.LoadFile(conf.Questions.File)
	if err != nil {
		return nil, err
	}
	src := questions.NewSource(b)
	go func() {
		if err := questions.Watch(ctx, conf.Questions.File, src, log); err != nil {
			log.WithError(err).Warn("question bank watch stopped")
		}
	}()
	return src, nil
}

// newScorer builds the configured primary scorer behind the heuristic
// fallback.
func newScorer(ctx context.Context, conf *config.Root, c *clients.HTTP, log logrus.FieldLogger) (scoring.Scorer, error) {
	var primary scoring.Scorer
	switch conf.Scorer.Primary {
	case "", "remote":
		primary = scoring.NewRemoteScorer(c, log)
	case "gemini":
		s, err := scoring.NewGeminiScorer(ctx, conf.Gemini.APIKey, conf.Gemini.Model)
		if err != nil {
			return nil, err
		}
		primary = s
	case "groq":
		s, err := scoring.NewGroqScorer(conf.Groq.APIKey, conf.Groq.BaseURL, conf.Groq.Model)
		if err != nil {
			return nil, err
		}
		primary = s
	case "heuristic":
		return scoring.NewHeuristicScorer(conf.Scorer.Seed), nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", conf.Scorer.Primary)
	}
	log.WithField("scorer", conf.Scorer.Primary).Debug("scorer ready")
	return scoring.NewFallback(primary, scoring.NewHeuristicScorer(conf.Scorer.Seed), conf.Interview.AnalysisTimeout, log), nil
}
