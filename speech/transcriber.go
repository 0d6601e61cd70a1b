package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultSilence      = 5 * time.Second
	DefaultRestartDelay = 300 * time.Millisecond
)

type EventKind int

const (
	EventResult EventKind = iota
	EventError
	EventEnd
)

// Event is what an engine reports: a result carrying fragments, an error code
// or the end of recognition.
type Event struct {
	Kind      EventKind
	Fragments []Fragment
	Code      string
}

// Engine is a continuous speech-to-text backend. Start delivers events through
// emit until recognition ends; an engine that ends on its own emits EventEnd
// and must accept a later Start. Stop must not block on emit.
type Engine interface {
	Start(ctx context.Context, emit func(Event)) error
	Stop()
}

type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

type StopReason string

const (
	StopExplicit StopReason = "explicit"
	StopSilence  StopReason = "silence"
	StopFatal    StopReason = "fatal"
)

type Options struct {
	Silence      time.Duration
	RestartDelay time.Duration
	OnTranscript func(text string)
	OnError      func(err *RecognitionError)
	// OnStop fires when recognition ends on its own (silence or a fatal
	// error). Explicit Stop calls do not trigger it.
	OnStop func(reason StopReason)
}

// Transcriber drives an Engine through idle -> listening -> idle and keeps the
// running answer. Callbacks never fire after Stop returns and must not call
// Stop themselves.
type Transcriber struct {
	engine Engine
	opts   Options
	log    logrus.FieldLogger

	mu      sync.Mutex
	deliver sync.Mutex
	state   State
	gen     uint64
	ctx     context.Context
	buf     Buffer
	silence *time.Timer
	restart *time.Timer
}

func NewTranscriber(engine Engine, opts Options, log logrus.FieldLogger) *Transcriber {
	if opts.Silence <= 0 {
		opts.Silence = DefaultSilence
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transcriber{engine: engine, opts: opts, log: log.WithField("component", "transcriber")}
}

// Start begins continuous recognition. Starting while listening is a no-op.
func (t *Transcriber) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state == Listening {
		t.mu.Unlock()
		return nil
	}
	t.state = Listening
	t.gen++
	gen := t.gen
	t.ctx = ctx
	t.mu.Unlock()

	if err := t.engine.Start(ctx, t.emitter(gen)); err != nil {
		t.mu.Lock()
		if t.gen == gen {
			t.state = Idle
			t.gen++
		}
		t.mu.Unlock()

		var rerr *RecognitionError
		if errors.As(err, &rerr) {
			return rerr
		}
		return err
	}

	t.log.Debug("listening")
	return nil
}

// Stop ends recognition. It is idempotent and returns after any in-flight
// callback has finished.
func (t *Transcriber) Stop() {
	if t.halt() {
		t.engine.Stop()
		t.log.Debug("stopped")
	}
	// wait out a callback that is already running
	t.deliver.Lock()
	t.deliver.Unlock()
}

func (t *Transcriber) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Text returns the finalized answer plus any interim hypothesis.
func (t *Transcriber) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Text()
}

// Answer returns the finalized answer only.
func (t *Transcriber) Answer() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Final()
}

func (t *Transcriber) Segments() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Segments()
}

// Reset clears the buffer for a new question.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Reset()
}

// halt moves to idle and invalidates pending events and timers. It reports
// whether the transcriber was listening.
func (t *Transcriber) halt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Listening {
		return false
	}
	t.state = Idle
	t.gen++
	t.stopTimersLocked()
	return true
}

func (t *Transcriber) stopTimersLocked() {
	if t.silence != nil {
		t.silence.Stop()
		t.silence = nil
	}
	if t.restart != nil {
		t.restart.Stop()
		t.restart = nil
	}
}

func (t *Transcriber) emitter(gen uint64) func(Event) {
	return func(ev Event) { t.handle(gen, ev) }
}

func (t *Transcriber) handle(gen uint64, ev Event) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	if gen != t.gen || t.state != Listening {
		t.mu.Unlock()
		return
	}

	switch ev.Kind {
	case EventResult:
		if t.buf.Apply(ev.Fragments) {
			t.armSilenceLocked(gen)
		}
		text := t.buf.Text()
		t.mu.Unlock()
		if t.opts.OnTranscript != nil {
			t.opts.OnTranscript(text)
		}

	case EventError:
		rerr := Classify(ev.Code)
		entry := t.log.WithField("code", rerr.Code)
		switch rerr.Severity {
		case Benign:
			t.mu.Unlock()
			entry.Debug("recognition notice")
		case Recoverable:
			t.mu.Unlock()
			entry.Warn("recognition error, continuing")
		case Fatal:
			t.state = Idle
			t.gen++
			t.stopTimersLocked()
			t.mu.Unlock()
			entry.Error("recognition failed")
			t.engine.Stop()
			if t.opts.OnError != nil {
				t.opts.OnError(rerr)
			}
			if t.opts.OnStop != nil {
				t.opts.OnStop(StopFatal)
			}
		}

	case EventEnd:
		t.log.Debug("engine ended while listening, scheduling restart")
		t.restart = time.AfterFunc(t.opts.RestartDelay, func() { t.restartEngine(gen) })
		t.mu.Unlock()

	default:
		t.mu.Unlock()
	}
}

func (t *Transcriber) armSilenceLocked(gen uint64) {
	if t.silence != nil {
		t.silence.Stop()
	}
	t.silence = time.AfterFunc(t.opts.Silence, func() { t.silenceExpired(gen) })
}

func (t *Transcriber) silenceExpired(gen uint64) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	if gen != t.gen || t.state != Listening {
		t.mu.Unlock()
		return
	}
	t.state = Idle
	t.gen++
	t.stopTimersLocked()
	t.mu.Unlock()

	t.engine.Stop()
	t.log.WithField("threshold", t.opts.Silence).Info("silence detected, stopping")
	if t.opts.OnStop != nil {
		t.opts.OnStop(StopSilence)
	}
}

func (t *Transcriber) restartEngine(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != Listening {
		t.mu.Unlock()
		return
	}
	t.restart = nil
	ctx := t.ctx
	t.mu.Unlock()

	if err := t.engine.Start(ctx, t.emitter(gen)); err != nil {
		t.log.WithError(err).Warn("restarting recognition")
		return
	}

	t.mu.Lock()
	stale := gen != t.gen
	t.mu.Unlock()
	if stale {
		t.engine.Stop()
		return
	}
	t.log.Debug("recognition restarted")
}
