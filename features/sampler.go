package features

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// FrameSource yields the signals of the frame currently on screen.
type FrameSource interface {
	Frame(ctx context.Context) (Signals, error)
}

// ErrNoFace is returned by sources when the frame has nothing to measure. The
// sampler skips such frames.
var ErrNoFace = errors.New("no face in frame")

// Sampler polls a FrameSource at a fixed frame rate and emits sliding windows.
// Stop must not be called from inside onWindow.
type Sampler struct {
	log logrus.FieldLogger
	fps int
	now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	live   bool
}

func NewSampler(fps int, log logrus.FieldLogger) *Sampler {
	if fps <= 0 {
		fps = DefaultFPS
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sampler{
		log: log.WithField("component", "sampler"),
		fps: fps,
		now: time.Now,
	}
}

// Start begins sampling. Zero windowLength or step select the defaults
// (3s windows every 1s). Starting a running sampler is an error.
func (s *Sampler) Start(ctx context.Context, src FrameSource, onWindow func(Window), windowLength, step time.Duration) error {
	win, err := NewWindower(windowLength, step, s.fps)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("sampler already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.live = true

	go s.loop(ctx, src, win, onWindow, s.done)

	s.log.WithFields(logrus.Fields{
		"fps":    s.fps,
		"length": win.length,
		"step":   win.step,
	}).Debug("sampling started")
	return nil
}

// Stop halts sampling and discards any partially filled window. It returns
// once the sampling goroutine has exited; repeated calls are no-ops.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.live = false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Debug("sampling stopped")
}

// Running reports whether a sampling loop is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Sampler) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *Sampler) loop(ctx context.Context, src FrameSource, win *Windower, onWindow func(Window), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sig, err := src.Frame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, ErrNoFace) {
				s.log.WithError(err).Debug("frame skipped")
			}
			continue
		}

		for _, w := range win.Add(s.now().UnixMilli(), sig) {
			if ctx.Err() != nil || !s.alive() {
				return
			}
			if onWindow != nil {
				onWindow(w)
			}
		}
	}
}
