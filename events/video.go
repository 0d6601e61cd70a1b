package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thinkhire/interview-pipeline/clients"
	"github.com/thinkhire/interview-pipeline/features"
	"github.com/thinkhire/interview-pipeline/orchestrator"
)

// WindowScorer is the per-window /video-analyze endpoint.
type WindowScorer interface {
	VideoWindow(ctx context.Context, w features.Window) (*clients.WindowScores, error)
}

// HTTPSink forwards windows to the per-window scorer from its own goroutine.
// Windows arriving while the queue is full are dropped.
type HTTPSink struct {
	scorer  WindowScorer
	timeout time.Duration
	log     logrus.FieldLogger
	queue   chan features.Window
	// OnScores receives every per-window result; optional.
	OnScores func(*clients.WindowScores)
}

func NewHTTPSink(s WindowScorer, timeout time.Duration, log logrus.FieldLogger) *HTTPSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTPSink{
		scorer:  s,
		timeout: timeout,
		log:     log.WithField("component", "video-sink"),
		queue:   make(chan features.Window, 16),
	}
}

func (s *HTTPSink) Observe(ev orchestrator.Event) {
	if ev.Kind != orchestrator.EventWindow || ev.Window == nil {
		return
	}
	select {
	case s.queue <- *ev.Window:
	default:
		s.log.Debug("window dropped, analyser busy")
	}
}

// Run posts queued windows until ctx is done.
func (s *HTTPSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-s.queue:
			s.post(ctx, w)
		}
	}
}

func (s *HTTPSink) post(ctx context.Context, w features.Window) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.scorer.VideoWindow(ctx, w)
	if err != nil {
		s.log.WithError(err).Debug("window analysis failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"window_start": res.WindowStart,
		"eye_contact":  res.EyeContactScore,
		"confidence":   res.ConfidenceScore,
	}).Debug("window analysed")
	if s.OnScores != nil {
		s.OnScores(res)
	}
}
