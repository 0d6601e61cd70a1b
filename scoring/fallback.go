package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultTimeout = 5 * time.Second

// Fallback runs Primary under Timeout and hands the submission to Secondary
// when it fails, times out or returns an invalid verdict. Score only errors
// when Secondary does.
type Fallback struct {
	Primary   Scorer
	Secondary Scorer
	Timeout   time.Duration
	Log       logrus.FieldLogger
}

func NewFallback(primary, secondary Scorer, timeout time.Duration, log logrus.FieldLogger) *Fallback {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Fallback{Primary: primary, Secondary: secondary, Timeout: timeout, Log: log.WithField("component", "scoring")}
}

type outcome struct {
	a   *Analysis
	err error
}

func (f *Fallback) Score(ctx context.Context, sub Submission) (*Analysis, error) {
	if f.Primary != nil {
		a, err := f.primary(ctx, sub)
		if err == nil {
			return a, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.Log.WithError(err).Warn("primary analysis failed, using fallback scorer")
	}
	return f.Secondary.Score(ctx, sub)
}

// primary returns no later than the timeout even if the scorer ignores its
// context.
func (f *Fallback) primary(ctx context.Context, sub Submission) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		a, err := f.Primary.Score(ctx, sub)
		done <- outcome{a, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		if o.a == nil || len(o.a.Scores) == 0 {
			return nil, &AnalysisError{Endpoint: "primary", Err: errors.New("empty analysis")}
		}
		return o.a, nil
	case <-ctx.Done():
		return nil, &AnalysisError{Endpoint: "primary", Err: ctx.Err()}
	}
}
