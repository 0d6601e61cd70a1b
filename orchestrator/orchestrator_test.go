package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/thinkhire/interview-pipeline/clients"
	"github.com/thinkhire/interview-pipeline/features"
	"github.com/thinkhire/interview-pipeline/media"
	"github.com/thinkhire/interview-pipeline/questions"
	"github.com/thinkhire/interview-pipeline/scoring"
	"github.com/thinkhire/interview-pipeline/speech"
	"github.com/thinkhire/interview-pipeline/store"
)

type testTrack struct {
	kind  string
	stops atomic.Int32
}

func (t *testTrack) Kind() string { return t.kind }
func (t *testTrack) Stop()        { t.stops.Add(1) }

type steadyFrames struct{}

func (steadyFrames) Frame(ctx context.Context) (features.Signals, error) {
	if err := ctx.Err(); err != nil {
		return features.Signals{}, err
	}
	return features.Signals{HeadX: 0.5, HeadY: 0.5, BBoxWidth: 0.3, IrisX: 0.5}, nil
}

type testStream struct {
	tracks []*testTrack
	// clip is returned by every Recording call when set
	clip []byte
}

func (s *testStream) Tracks() []media.Track {
	out := make([]media.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *testStream) Frames() features.FrameSource { return steadyFrames{} }

func (s *testStream) Recording() []byte { return s.clip }

func (s *testStream) stopped() bool {
	for _, t := range s.tracks {
		if t.stops.Load() != 1 {
			return false
		}
	}
	return true
}

type testDevices struct {
	err    error
	stream *testStream
}

func (d *testDevices) GetUserMedia(context.Context, media.Constraints) (media.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

type scorerFunc func(ctx context.Context, sub scoring.Submission) (*scoring.Analysis, error)

func (f scorerFunc) Score(ctx context.Context, sub scoring.Submission) (*scoring.Analysis, error) {
	return f(ctx, sub)
}

type events struct {
	mu  sync.Mutex
	all []Event
}

func (e *events) add(ev Event) {
	e.mu.Lock()
	e.all = append(e.all, ev)
	e.mu.Unlock()
}

func (e *events) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.all)
}

func (e *events) kind(k EventKind) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.all {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	o      *Orchestrator
	stream *testStream
	store  *store.Session
	events *events
}

func newFixture(t *testing.T, cfg Config, scorer scoring.Scorer, cues []speech.Cue) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)

	stream := &testStream{tracks: []*testTrack{{kind: "video"}, {kind: "audio"}}}
	st := store.NewSession(store.NewMemory())
	if cfg.Tick == 0 {
		cfg.Tick = 5 * time.Millisecond
	}
	if cfg.WindowLength == 0 {
		cfg.WindowLength, cfg.Step, cfg.FPS = 40*time.Millisecond, 20*time.Millisecond, 100
	}
	if cfg.Silence == 0 {
		cfg.Silence = time.Second
	}
	o := New(cfg, Deps{
		Media:  media.NewAcquirer(&testDevices{stream: stream}, media.NopSink{}, log),
		Engine: speech.NewScriptEngine(cues),
		Scorer: scorer,
		Store:  st,
		Log:    log,
	})
	ev := &events{}
	o.Observe(ev.add)
	return &fixture{o: o, stream: stream, store: st, events: ev}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (f *fixture) answering(t *testing.T) {
	t.Helper()
	if err := f.o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "answering", func() bool { return f.o.State() == Answering })
}

func TestStartRunsCountdown(t *testing.T) {
	f := newFixture(t, Config{CountdownTicks: 3, Tick: 10 * time.Millisecond}, nil, nil)
	defer f.o.Exit()

	if err := f.o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s := f.o.State(); s != CountdownRunning {
		t.Fatalf("state after Start = %s", s)
	}
	if err := f.o.Start(context.Background()); err == nil {
		t.Fatal("second Start accepted")
	}
	waitFor(t, "answering", func() bool { return f.o.State() == Answering })

	var ticks []int
	for _, ev := range f.events.kind(EventCountdown) {
		ticks = append(ticks, ev.Countdown)
	}
	if diff := cmp.Diff([]int{3, 2, 1, 0}, ticks); diff != "" {
		t.Fatalf("countdown mismatch (-want +got):\n%s", diff)
	}
	q, n := f.o.Question()
	if n != 1 || q != questions.Builtin().First(questions.DefaultDomain) {
		t.Fatalf("first question = %d %q", n, q)
	}
	waitFor(t, "a window", func() bool { return len(f.events.kind(EventWindow)) > 0 })
}

func TestSubmitScoresTranscript(t *testing.T) {
	var got scoring.Submission
	scorer := scorerFunc(func(_ context.Context, sub scoring.Submission) (*scoring.Analysis, error) {
		got = sub
		return &scoring.Analysis{
			Scores: scoring.Scores{scoring.ClarityStructure: 80, scoring.Confidence: 70},
			Source: scoring.SourceRemote,
		}, nil
	})
	f := newFixture(t, Config{}, scorer, []speech.Cue{
		{AfterMs: 1, Text: "goroutines are cheap", Final: true},
	})
	defer f.o.Exit()
	f.answering(t)
	waitFor(t, "transcript", func() bool { return f.o.Transcript() != "" })

	ps, err := f.o.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Answer != "goroutines are cheap" {
		t.Fatalf("scored answer %q", got.Answer)
	}
	if ps.Overall != 75 || ps.Source != scoring.SourceRemote {
		t.Fatalf("score = %+v", ps)
	}
	if s := f.o.State(); s != Reviewing {
		t.Fatalf("state = %s, want reviewing", s)
	}
	if len(got.Windows) > 10 {
		t.Fatalf("sent %d windows", len(got.Windows))
	}

	hist, err := f.store.GetSessionScores()
	if err != nil || len(hist) != 1 || hist[0].Score != 75 {
		t.Fatalf("session scores = %v, %v", hist, err)
	}
	perf, err := f.store.Performance(f.o.SessionID())
	if err != nil || len(perf) != 1 {
		t.Fatalf("performance = %v, %v", perf, err)
	}
}

func TestSubmitFallsBackToHeuristic(t *testing.T) {
	cases := []struct {
		name   string
		scorer scoring.Scorer
	}{
		{"error", scorerFunc(func(context.Context, scoring.Submission) (*scoring.Analysis, error) {
			return nil, &scoring.AnalysisError{Endpoint: "/api/analyze-speech-answer", Err: errors.New("503")}
		})},
		{"timeout", scoring.NewFallback(
			scorerFunc(func(ctx context.Context, _ scoring.Submission) (*scoring.Analysis, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
			scoring.NewHeuristicScorer(1),
			20*time.Millisecond, nil,
		)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Config{}, tc.scorer, nil)
			defer f.o.Exit()
			f.answering(t)

			ps, err := f.o.Submit(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if ps.Source != scoring.SourceHeuristic {
				t.Fatalf("source = %s", ps.Source)
			}
			for _, d := range scoring.Dimensions {
				if _, ok := ps.Scores[d]; !ok {
					t.Errorf("dimension %s missing", d)
				}
			}
			if f.o.State() != Reviewing {
				t.Fatalf("state = %s", f.o.State())
			}
		})
	}
}

func TestQuestionCapCompletes(t *testing.T) {
	f := newFixture(t, Config{QuestionCap: 3, CountdownTicks: 1}, scoring.NewHeuristicScorer(3), nil)
	defer f.o.Exit()
	f.answering(t)

	seen := map[string]bool{}
	for i := 1; i <= 3; i++ {
		q, n := f.o.Question()
		if n != i {
			t.Fatalf("question number %d, want %d", n, i)
		}
		if seen[q] {
			t.Fatalf("question %q repeated", q)
		}
		seen[q] = true

		ps, err := f.o.Skip(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if ps.Answer != "" {
			t.Fatalf("skipped answer = %q", ps.Answer)
		}
		if err := f.o.Next(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if s := f.o.State(); s != Complete {
		t.Fatalf("state = %s, want complete", s)
	}
	if !f.stream.stopped() {
		t.Fatal("media not released on completion")
	}
	if len(f.o.Scores()) != 3 {
		t.Fatalf("%d scores", len(f.o.Scores()))
	}

	if err := f.o.Restart(); err != nil {
		t.Fatal(err)
	}
	if f.o.State() != NotStarted || len(f.o.Scores()) != 0 {
		t.Fatal("restart kept the previous run")
	}
}

func TestExitStopsEverything(t *testing.T) {
	cues := make([]speech.Cue, 50)
	for i := range cues {
		cues[i] = speech.Cue{AfterMs: 5, Text: "still talking"}
	}
	f := newFixture(t, Config{}, nil, cues)
	f.answering(t)
	waitFor(t, "transcript event", func() bool { return len(f.events.kind(EventTranscript)) > 0 })

	f.o.Exit()
	if s := f.o.State(); s != NotStarted {
		t.Fatalf("state = %s", s)
	}
	if !f.stream.stopped() {
		t.Fatal("tracks not stopped exactly once")
	}
	after := f.events.count()
	time.Sleep(60 * time.Millisecond)
	if n := f.events.count(); n != after {
		t.Fatalf("%d events after Exit", n-after)
	}

	f.o.Exit()
	if _, err := f.o.Submit(context.Background()); err == nil {
		t.Fatal("Submit accepted after Exit")
	}
}

func TestExitStartsAFreshRun(t *testing.T) {
	f := newFixture(t, Config{QuestionCap: 2}, scoring.NewHeuristicScorer(2), nil)
	defer f.o.Exit()
	f.answering(t)
	if _, err := f.o.Skip(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := f.o.SessionID()
	f.o.Exit()

	if len(f.o.Scores()) != 0 {
		t.Fatal("scores survived Exit")
	}
	f.answering(t)
	for i := 0; i < 2; i++ {
		if _, err := f.o.Skip(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := f.o.Next(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if s := f.o.State(); s != Complete {
		t.Fatalf("state = %s, want complete", s)
	}

	second := f.o.SessionID()
	if second == first {
		t.Fatal("run after Exit reused the session id")
	}
	if r := f.o.Report(); r.Questions != 2 {
		t.Fatalf("report covers %d questions, want 2", r.Questions)
	}
	for id, want := range map[string]int{first: 1, second: 2} {
		ps, err := f.store.Performance(id)
		if err != nil || len(ps) != want {
			t.Fatalf("performance(%s) = %d records, %v; want %d", id, len(ps), err, want)
		}
	}
}

type ctxEngine struct {
	mu  sync.Mutex
	ctx context.Context
}

func (e *ctxEngine) Start(ctx context.Context, _ func(speech.Event)) error {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()
	return nil
}

func (e *ctxEngine) Stop() {}

func (e *ctxEngine) started() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx
}

func TestSubmitCancelsCaptureContext(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	engine := &ctxEngine{}
	stream := &testStream{tracks: []*testTrack{{kind: "video"}}}
	o := New(Config{Tick: 5 * time.Millisecond, WindowLength: 40 * time.Millisecond, Step: 20 * time.Millisecond, FPS: 100, Silence: time.Second}, Deps{
		Media:  media.NewAcquirer(&testDevices{stream: stream}, nil, log),
		Engine: engine,
		Log:    log,
	})
	defer o.Exit()

	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "recognition start", func() bool { return engine.started() != nil })
	ctx := engine.started()
	if ctx.Err() != nil {
		t.Fatal("capture context done while answering")
	}
	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ctx.Err() == nil {
		t.Fatal("capture context still live after Submit")
	}
}

type videoAnalyzer struct {
	mu     sync.Mutex
	videos []string
}

func (a *videoAnalyzer) AnalyzeSpeechAnswer(context.Context, string) (*clients.SpeechAnswerResp, error) {
	return &clients.SpeechAnswerResp{}, nil
}

func (a *videoAnalyzer) EnhancedLiveAnalysis(context.Context, clients.EnhancedLiveReq) (*clients.EnhancedLiveResp, error) {
	return &clients.EnhancedLiveResp{}, nil
}

func (a *videoAnalyzer) AnalyzeVideoInterview(_ context.Context, video []byte, _, _ string) (*clients.VideoInterviewResp, error) {
	a.mu.Lock()
	a.videos = append(a.videos, string(video))
	a.mu.Unlock()
	return &clients.VideoInterviewResp{}, nil
}

func (a *videoAnalyzer) sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.videos...)
}

func TestRecordingReachesVideoAnalysis(t *testing.T) {
	analyzer := &videoAnalyzer{}
	f := newFixture(t, Config{}, scoring.NewRemoteScorer(analyzer, nil), nil)
	defer f.o.Exit()
	f.stream.clip = []byte("answer-1")
	f.answering(t)

	if _, err := f.o.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"answer-1"}, analyzer.sent()); diff != "" {
		t.Fatalf("videos mismatch (-want +got):\n%s", diff)
	}

	if err := f.o.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.o.Skip(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(analyzer.sent()); n != 1 {
		t.Fatalf("skipped answer sent a recording (%d videos)", n)
	}
}

func TestReplayRecordingReachesVideoAnalysis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.jsonl")
	line := `{"head_x":0.5,"head_y":0.5,"bbox_width":0.3,"iris_x":0.5}`
	if err := os.WriteFile(path, []byte(line+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	analyzer := &videoAnalyzer{}
	o := New(Config{Tick: 5 * time.Millisecond, WindowLength: 40 * time.Millisecond, Step: 20 * time.Millisecond, FPS: 100, Silence: time.Second}, Deps{
		Media:  media.NewAcquirer(&media.ReplayDevices{Path: path}, media.NopSink{}, log),
		Engine: speech.NewScriptEngine(nil),
		Scorer: scoring.NewRemoteScorer(analyzer, log),
		Log:    log,
	})
	defer o.Exit()
	ev := &events{}
	o.Observe(ev.add)

	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "a window", func() bool { return len(ev.kind(EventWindow)) > 0 })
	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	sent := analyzer.sent()
	if len(sent) != 1 || !strings.HasPrefix(sent[0], line+"\n") {
		t.Fatalf("videos = %q", sent)
	}
}

func TestExitDuringCountdown(t *testing.T) {
	f := newFixture(t, Config{CountdownTicks: 3, Tick: time.Hour}, nil, nil)
	if err := f.o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.o.Exit()
	if f.o.State() != NotStarted || !f.stream.stopped() {
		t.Fatal("countdown not torn down")
	}
}

func TestDeviceErrorReturnsToNotStarted(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	o := New(Config{}, Deps{
		Media: media.NewAcquirer(&testDevices{err: &media.DeviceError{Kind: media.PermissionDenied}}, nil, log),
		Log:   log,
	})
	ev := &events{}
	o.Observe(ev.add)

	err := o.Start(context.Background())
	if !errors.Is(err, media.ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
	if o.State() != NotStarted {
		t.Fatalf("state = %s", o.State())
	}
	if errs := ev.kind(EventError); len(errs) != 1 || errs[0].Error == "" {
		t.Fatalf("error events = %+v", errs)
	}
}

func TestFatalRecognitionErrorKeepsAnswering(t *testing.T) {
	f := newFixture(t, Config{}, scoring.NewHeuristicScorer(1), []speech.Cue{
		{AfterMs: 1, Text: "hello", Final: true},
		{AfterMs: 1, Error: speech.CodeNotAllowed},
	})
	defer f.o.Exit()
	f.answering(t)
	waitFor(t, "error event", func() bool { return len(f.events.kind(EventError)) > 0 })

	if s := f.o.State(); s != Answering {
		t.Fatalf("state = %s", s)
	}
	ps, err := f.o.Submit(context.Background())
	if err != nil || ps.Answer != "hello" {
		t.Fatalf("submit after fatal error = %+v, %v", ps, err)
	}
}

func TestTransitionErrors(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	var te *TransitionError
	if _, err := f.o.Submit(context.Background()); !errors.As(err, &te) || te.State != NotStarted {
		t.Fatalf("Submit err = %v", err)
	}
	if err := f.o.Next(context.Background()); !errors.As(err, &te) {
		t.Fatalf("Next err = %v", err)
	}
	if err := f.o.Restart(); !errors.As(err, &te) {
		t.Fatalf("Restart err = %v", err)
	}
}

func TestReportAndExport(t *testing.T) {
	f := newFixture(t, Config{}, scorerFunc(func(context.Context, scoring.Submission) (*scoring.Analysis, error) {
		return &scoring.Analysis{
			Scores:     scoring.Scores{scoring.ClarityStructure: 90, scoring.Confidence: 60},
			Weaknesses: []string{"pace"},
			Source:     scoring.SourceRemote,
		}, nil
	}), nil)
	defer f.o.Exit()
	f.answering(t)
	if _, err := f.o.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}

	r := f.o.Report()
	want := map[string]int{scoring.ClarityStructure: 90, scoring.Confidence: 60}
	if diff := cmp.Diff(want, r.Dimensions); diff != "" {
		t.Fatalf("dimensions mismatch (-want +got):\n%s", diff)
	}
	if r.Average != 75 || r.Questions != 1 || len(r.Weaknesses) != 1 {
		t.Fatalf("report = %+v", r)
	}

	dir, err := f.o.Export(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dir) != "session_"+f.o.SessionID() {
		t.Fatalf("dir = %s", dir)
	}
	data, err := os.ReadFile(filepath.Join(dir, "report.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var back struct {
		Average int `yaml:"average"`
	}
	if err := yaml.Unmarshal(data, &back); err != nil || back.Average != 75 {
		t.Fatalf("report.yaml = %s (%v)", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "windows.json")); err != nil {
		t.Fatal(err)
	}
}

func TestSummarizeWeaknesses(t *testing.T) {
	r := Summarize("s", "general", []scoring.PerformanceScore{
		{Overall: 50, Weaknesses: []string{"b", "a"}},
		{Overall: 71, Weaknesses: []string{"a", "c", "d"}},
	})
	if diff := cmp.Diff([]string{"a", "b", "c"}, r.Weaknesses); diff != "" {
		t.Fatalf("weaknesses mismatch (-want +got):\n%s", diff)
	}
	if r.Average != 61 {
		t.Fatalf("average = %d", r.Average)
	}
}

func TestRetain(t *testing.T) {
	var ws []features.Window
	for i := 0; i < 15; i++ {
		ws = retain(append(ws, features.Window{WindowStart: int64(i), WindowEnd: int64(i + 1)}), 10)
	}
	if len(ws) != 10 || ws[0].WindowStart != 5 {
		t.Fatalf("retained %d starting at %d", len(ws), ws[0].WindowStart)
	}
}
