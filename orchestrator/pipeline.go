// Package orchestrator sequences an interview: countdown, capture, submission,
// scoring and the choice of the next question.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thinkhire/interview-pipeline/features"
	"github.com/thinkhire/interview-pipeline/media"
	"github.com/thinkhire/interview-pipeline/questions"
	"github.com/thinkhire/interview-pipeline/scoring"
	"github.com/thinkhire/interview-pipeline/speech"
	"github.com/thinkhire/interview-pipeline/store"
)

// Config holds the interview limits and capture geometry.
type Config struct {
	Domain         string
	QuestionCap    int
	CountdownTicks int
	Tick           time.Duration
	WindowLength   time.Duration
	Step           time.Duration
	FPS            int
	// Retain is how many of the latest windows are sent with an answer.
	Retain       int
	Silence      time.Duration
	RestartDelay time.Duration
	// AutoSubmit submits the answer when the transcriber stops on silence.
	AutoSubmit bool
	Seed       int64
}

func (c *Config) defaults() {
	if c.Domain == "" {
		c.Domain = questions.DefaultDomain
	}
	if c.QuestionCap <= 0 {
		c.QuestionCap = 5
	}
	if c.CountdownTicks < 0 {
		c.CountdownTicks = 0
	}
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.Retain <= 0 {
		c.Retain = 10
	}
}

// Acquirer opens the camera and microphone.
type Acquirer interface {
	Acquire(ctx context.Context, c media.Constraints) (*media.Session, error)
}

// Deps is everything one interview needs. Nothing is shared between
// orchestrators beyond what is passed in here.
type Deps struct {
	Media       Acquirer
	Constraints media.Constraints
	Engine      speech.Engine
	Scorer      scoring.Scorer
	Questions   *questions.Adaptive
	Bank        *questions.Source
	Store       *store.Session
	Log         logrus.FieldLogger
	Now         func() time.Time
}

// Orchestrator runs one interview at a time. Its methods are safe for
// concurrent use; observers must not call back into it synchronously.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  logrus.FieldLogger

	transcriber *speech.Transcriber
	sampler     *features.Sampler
	// last resort when the configured scorer fails outright
	heuristic scoring.Scorer

	// capture serialises starting and stopping of the capture components
	capture sync.Mutex

	mu        sync.Mutex
	state     State
	gen       uint64
	sessionID string
	question  string
	asked     int
	windows   []features.Window
	answers   []answer
	scores    []scoring.PerformanceScore
	media     *media.Session
	countdown context.CancelFunc
	ticking   chan struct{}
	// cancels the countdown context once it has become the capture parent
	captureCancel context.CancelFunc
	observers []func(Event)
}

// answer is kept for export.
type answer struct {
	Question string            `json:"question"`
	Windows  []features.Window `json:"windows"`
}

func New(cfg Config, deps Deps) *Orchestrator {
	cfg.defaults()
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Bank == nil {
		deps.Bank = questions.NewSource(questions.Builtin())
	}
	if deps.Questions == nil {
		deps.Questions = questions.NewAdaptive(nil, questions.NewPicker(deps.Bank, cfg.Seed), 0, deps.Log)
	}
	if deps.Store == nil {
		deps.Store = store.NewSession(store.NewMemory())
	}
	if deps.Constraints.Video == nil && !deps.Constraints.Audio {
		deps.Constraints = media.DefaultConstraints()
	}
	heuristic := scoring.NewHeuristicScorer(cfg.Seed)
	if deps.Scorer == nil {
		deps.Scorer = heuristic
	}

	o := &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		log:       deps.Log.WithField("component", "orchestrator"),
		heuristic: heuristic,
		sessionID: uuid.NewString(),
	}
	o.sampler = features.NewSampler(cfg.FPS, deps.Log)
	o.transcriber = speech.NewTranscriber(deps.Engine, speech.Options{
		Silence:      cfg.Silence,
		RestartDelay: cfg.RestartDelay,
		OnTranscript: o.onTranscript,
		OnError:      o.onRecognitionError,
		OnStop:       o.onListeningStopped,
	}, deps.Log)
	return o
}

// Observe registers fn for every subsequent event.
func (o *Orchestrator) Observe(fn func(Event)) {
	o.mu.Lock()
	o.observers = append(o.observers, fn)
	o.mu.Unlock()
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Question returns the current question and its 1-based number.
func (o *Orchestrator) Question() (string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.question, o.asked
}

// Transcript is the answer heard so far.
func (o *Orchestrator) Transcript() string { return o.transcriber.Text() }

func (o *Orchestrator) Scores() []scoring.PerformanceScore {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]scoring.PerformanceScore(nil), o.scores...)
}

// Start opens the devices and runs the countdown. It returns once the
// countdown is running; Answering follows after the last tick.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != NotStarted {
		defer o.mu.Unlock()
		return &TransitionError{Op: "start", State: o.state}
	}
	o.gen++
	gen := o.gen
	if o.asked == 0 {
		o.question = o.deps.Bank.Bank().First(o.cfg.Domain)
		o.asked = 1
		o.deps.Questions.Picker.Use(o.question)
	}
	o.setStateLocked(CountdownRunning)
	o.mu.Unlock()

	sess, err := o.deps.Media.Acquire(ctx, o.deps.Constraints)

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		if sess != nil {
			sess.Release()
		}
		return ErrExited
	}
	if err != nil {
		o.setStateLocked(NotStarted)
		o.emitLocked(Event{Kind: EventError, Error: deviceMessage(err)})
		o.mu.Unlock()
		return err
	}
	o.media = sess
	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.countdown = cancel
	o.ticking = make(chan struct{})
	done := o.ticking
	o.emitLocked(Event{Kind: EventQuestion, Question: o.question, Index: o.asked})
	o.mu.Unlock()

	go o.runCountdown(cctx, cancel, gen, done)
	return nil
}

func (o *Orchestrator) runCountdown(ctx context.Context, cancel context.CancelFunc, gen uint64, done chan struct{}) {
	defer close(done)

	t := time.NewTicker(o.cfg.Tick)
	defer t.Stop()
	for left := o.cfg.CountdownTicks; ; left-- {
		if !o.emitIfCurrent(gen, Event{Kind: EventCountdown, Countdown: left}) {
			return
		}
		if left == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}

	o.mu.Lock()
	if gen != o.gen || o.state != CountdownRunning {
		o.mu.Unlock()
		cancel()
		return
	}
	o.countdown = nil
	o.captureCancel = cancel
	o.setStateLocked(Answering)
	o.mu.Unlock()

	o.startCapture(ctx, gen)
}

// startCapture starts the transcriber and the sampler for the current
// question.
func (o *Orchestrator) startCapture(ctx context.Context, gen uint64) {
	o.capture.Lock()
	defer o.capture.Unlock()

	o.mu.Lock()
	if gen != o.gen || o.state != Answering {
		o.mu.Unlock()
		return
	}
	sess := o.media
	o.mu.Unlock()

	o.transcriber.Reset()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := o.transcriber.Start(ctx); err != nil {
			o.log.WithError(err).Error("speech recognition unavailable")
			o.emitIfCurrent(gen, Event{Kind: EventError, Error: recognitionMessage(err)})
		}
	}()
	go func() {
		defer wg.Done()
		if sess == nil {
			return
		}
		err := o.sampler.Start(ctx, sess.Frames(), o.windowHandler(gen), o.cfg.WindowLength, o.cfg.Step)
		if err != nil {
			o.log.WithError(err).Error("feature sampling unavailable")
			o.emitIfCurrent(gen, Event{Kind: EventError, Error: err.Error()})
		}
	}()
	wg.Wait()
}

// stopCapture stops recognition before sampling.
func (o *Orchestrator) stopCapture() {
	o.capture.Lock()
	defer o.capture.Unlock()
	o.transcriber.Stop()
	o.sampler.Stop()

	o.mu.Lock()
	cancel := o.captureCancel
	o.captureCancel = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) windowHandler(gen uint64) func(features.Window) {
	return func(w features.Window) {
		o.mu.Lock()
		if gen != o.gen || o.state != Answering {
			o.mu.Unlock()
			return
		}
		o.windows = retain(append(o.windows, w), o.cfg.Retain)
		m := features.Derive(w)
		o.emitLocked(Event{Kind: EventWindow, Window: &w, Metrics: &m})
		o.mu.Unlock()
	}
}

func (o *Orchestrator) onTranscript(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Answering {
		return
	}
	o.emitLocked(Event{Kind: EventTranscript, Text: text})
}

func (o *Orchestrator) onRecognitionError(err *speech.RecognitionError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emitLocked(Event{Kind: EventError, Error: err.Message()})
}

func (o *Orchestrator) onListeningStopped(reason speech.StopReason) {
	o.mu.Lock()
	gen := o.gen
	answering := o.state == Answering
	if answering {
		o.emitLocked(Event{Kind: EventListening, Text: string(reason)})
	}
	o.mu.Unlock()

	if answering && reason == speech.StopSilence && o.cfg.AutoSubmit {
		// the transcriber is still delivering this callback
		go func() {
			o.mu.Lock()
			current := gen == o.gen
			o.mu.Unlock()
			if current {
				if _, err := o.Submit(context.Background()); err != nil {
					o.log.WithError(err).Debug("auto submit skipped")
				}
			}
		}()
	}
}

// Submit ends the answer, scores it and moves to Reviewing. Scoring never
// leaves the interview stuck: a failed scorer is replaced by the heuristic.
func (o *Orchestrator) Submit(ctx context.Context) (*scoring.PerformanceScore, error) {
	return o.submit(ctx, false)
}

// Skip submits an empty answer.
func (o *Orchestrator) Skip(ctx context.Context) (*scoring.PerformanceScore, error) {
	return o.submit(ctx, true)
}

func (o *Orchestrator) submit(ctx context.Context, skip bool) (*scoring.PerformanceScore, error) {
	o.mu.Lock()
	if o.state != Answering {
		defer o.mu.Unlock()
		return nil, &TransitionError{Op: "submit", State: o.state}
	}
	gen := o.gen
	o.setStateLocked(Submitting)
	o.mu.Unlock()

	o.stopCapture()

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return nil, ErrExited
	}
	sub := scoring.Submission{
		Question: o.question,
		Domain:   o.cfg.Domain,
		Windows:  append([]features.Window(nil), o.windows...),
	}
	sess := o.media
	o.mu.Unlock()

	// a skipped answer still drains the recording so it is not sent
	// with the next one
	var video []byte
	if rec, ok := streamRecorder(sess); ok {
		video = rec.Recording()
	}
	if !skip {
		sub.Answer = strings.TrimSpace(o.transcriber.Text())
		sub.Video = video
	}

	a := o.score(ctx, sub)
	ps := scoring.Record(sub, a, o.deps.Now())

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return nil, ErrExited
	}
	o.scores = append(o.scores, ps)
	o.answers = append(o.answers, answer{Question: sub.Question, Windows: sub.Windows})
	o.windows = nil
	all := append([]scoring.PerformanceScore(nil), o.scores...)
	sid := o.sessionID
	o.setStateLocked(Reviewing)
	o.emitLocked(Event{Kind: EventScore, Score: &ps, Index: o.asked})
	o.mu.Unlock()

	o.persist(sid, all, ps)
	return &ps, nil
}

func (o *Orchestrator) score(ctx context.Context, sub scoring.Submission) *scoring.Analysis {
	a, err := o.deps.Scorer.Score(ctx, sub)
	if err == nil && a != nil {
		return a
	}
	o.log.WithError(err).Warn("scoring failed, using heuristic")
	a, err = o.heuristic.Score(context.WithoutCancel(ctx), sub)
	if err != nil {
		// unreachable: the heuristic only fails on a done context
		return &scoring.Analysis{Scores: scoring.Scores{}, Source: scoring.SourceHeuristic}
	}
	return a
}

func (o *Orchestrator) persist(sessionID string, all []scoring.PerformanceScore, ps scoring.PerformanceScore) {
	if err := o.deps.Store.SavePerformance(sessionID, all); err != nil {
		o.log.WithError(err).Warn("saving performance scores")
	}
	err := o.deps.Store.AppendSessionScore(store.SessionScore{
		Score:     ps.Overall,
		Timestamp: ps.At,
		Question:  ps.Question,
	})
	if err != nil {
		o.log.WithError(err).Warn("saving session score")
	}
}

// Next moves on from Reviewing: to Complete once the question cap is
// reached, otherwise to Answering with the next question.
func (o *Orchestrator) Next(ctx context.Context) error {
	o.mu.Lock()
	if o.state != Reviewing {
		defer o.mu.Unlock()
		return &TransitionError{Op: "continue", State: o.state}
	}
	gen := o.gen
	if o.asked >= o.cfg.QuestionCap {
		o.setStateLocked(Complete)
		sess, asked := o.media, o.asked
		o.media = nil
		o.mu.Unlock()
		if sess != nil {
			sess.Release()
		}
		o.log.WithField("questions", asked).Info("interview complete")
		return nil
	}
	last := outcome(o.scores[len(o.scores)-1])
	o.mu.Unlock()

	q, adaptive := o.deps.Questions.Next(ctx, o.cfg.Domain, last)

	o.mu.Lock()
	if gen != o.gen || o.state != Reviewing {
		o.mu.Unlock()
		return ErrExited
	}
	o.question = q
	o.asked++
	o.log.WithFields(logrus.Fields{"question": o.asked, "adaptive": adaptive}).Info("next question")
	o.emitLocked(Event{Kind: EventQuestion, Question: q, Index: o.asked})
	o.setStateLocked(Answering)
	o.mu.Unlock()

	o.startCapture(context.WithoutCancel(ctx), gen)
	return nil
}

// Exit tears the interview down from any state: timers first, then the
// transcriber, the sampler and finally the devices. No capture callback
// fires once Exit has returned. A later Start begins a new run.
func (o *Orchestrator) Exit() {
	o.mu.Lock()
	o.gen++
	cancel, ticking := o.countdown, o.ticking
	o.countdown, o.ticking = nil, nil
	sess := o.media
	o.media = nil
	wasIdle := o.state == NotStarted
	o.state = NotStarted
	o.resetRunLocked()
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ticking != nil {
		<-ticking
	}
	o.stopCapture()
	if sess != nil {
		sess.Release()
	}

	o.deps.Questions.Picker.Reset()
	if !wasIdle {
		o.log.Info("interview exited")
		o.mu.Lock()
		o.emitLocked(Event{Kind: EventState})
		o.mu.Unlock()
	}
}

// Restart begins a fresh run after Complete.
func (o *Orchestrator) Restart() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Complete {
		return &TransitionError{Op: "restart", State: o.state}
	}
	o.gen++
	o.resetRunLocked()
	o.deps.Questions.Picker.Reset()
	o.setStateLocked(NotStarted)
	return nil
}

// resetRunLocked starts a new run under a fresh session id. Scores already
// persisted stay under the previous id.
func (o *Orchestrator) resetRunLocked() {
	o.sessionID = uuid.NewString()
	o.asked = 0
	o.question = ""
	o.scores = nil
	o.answers = nil
	o.windows = nil
}

func (o *Orchestrator) setStateLocked(s State) {
	o.state = s
	o.log.WithFields(logrus.Fields{"session": o.sessionID, "state": s}).Debug("state")
	o.emitLocked(Event{Kind: EventState})
}

// emitLocked delivers ev to every observer. Observers run under o.mu.
func (o *Orchestrator) emitLocked(ev Event) {
	ev.Session = o.sessionID
	ev.State = o.state
	ev.At = o.deps.Now()
	for _, fn := range o.observers {
		fn(ev)
	}
}

func (o *Orchestrator) emitIfCurrent(gen uint64, ev Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return false
	}
	o.emitLocked(ev)
	return true
}

func streamRecorder(sess *media.Session) (media.Recorder, bool) {
	if sess == nil {
		return nil, false
	}
	rec, ok := sess.Stream().(media.Recorder)
	return rec, ok
}

func deviceMessage(err error) string {
	var d *media.DeviceError
	if errors.As(err, &d) {
		return d.Message()
	}
	return err.Error()
}

func recognitionMessage(err error) string {
	var r *speech.RecognitionError
	if errors.As(err, &r) {
		return r.Message()
	}
	return err.Error()
}
