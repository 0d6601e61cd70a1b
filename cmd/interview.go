package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thinkhire/interview-pipeline/clients"
	"github.com/thinkhire/interview-pipeline/config"
	"github.com/thinkhire/interview-pipeline/events"
	"github.com/thinkhire/interview-pipeline/media"
	"github.com/thinkhire/interview-pipeline/orchestrator"
	"github.com/thinkhire/interview-pipeline/questions"
	"github.com/thinkhire/interview-pipeline/speech"
)

const (
	PromptStart   = "Start interview"
	PromptSubmit  = "Submit answer"
	PromptSkip    = "Skip question"
	PromptNext    = "Next question"
	PromptRestart = "Start again"
	PromptExport  = "Export report"
	PromptExit    = "Exit"
)

var errExit = errors.New("exit requested")

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run a mock interview from recorded camera signals and speech",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runInterview(cmd)
	},
}

func init() {
	rootCmd.AddCommand(interviewCmd)

	interviewCmd.Flags().String("frames", "", "recorded per-frame signals (JSON lines) used as the camera")
	interviewCmd.Flags().String("script", "", "speech cue script (JSON lines) used as the recognizer")
	interviewCmd.Flags().StringSlice("audio", nil, "recorded answers sent to the ASR service, one per question")
	interviewCmd.Flags().String("domain", "", "interview domain (ml, ds, se, fin, pm, ux, hr, sales, general)")
	interviewCmd.Flags().Int("cap", 0, "number of questions")
	interviewCmd.Flags().Bool("auto-submit", false, "submit when the speaker falls silent")
	interviewCmd.Flags().Bool("window-analysis", false, "send every feature window to /video-analyze")
	_ = interviewCmd.MarkFlagRequired("frames")

	_ = viper.BindPFlag("interview.domain", interviewCmd.Flags().Lookup("domain"))
}

func runInterview(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conf, log, err := setup()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	frames, _ := flags.GetString("frames")
	script, _ := flags.GetString("script")
	audio, _ := flags.GetStringSlice("audio")
	autoSubmit, _ := flags.GetBool("auto-submit")
	windowAnalysis, _ := flags.GetBool("window-analysis")
	if n, _ := flags.GetInt("cap"); n > 0 {
		conf.Interview.QuestionCap = n
	}

	client := clients.NewHTTP(conf.Services.Analysis.URL, 0)
	engine, err := newEngine(conf, script, audio)
	if err != nil {
		return err
	}
	st, err := newStore(conf)
	if err != nil {
		return err
	}
	bank, err := newBank(ctx, conf, log)
	if err != nil {
		return err
	}
	scorer, err := newScorer(ctx, conf, client, log)
	if err != nil {
		return err
	}
	picker := questions.NewPicker(bank, conf.Scorer.Seed)

	o := orchestrator.New(orchestrator.Config{
		Domain:         conf.Interview.Domain,
		QuestionCap:    conf.Interview.QuestionCap,
		CountdownTicks: conf.Interview.CountdownTicks,
		Tick:           conf.Interview.Tick,
		WindowLength:   config.Millis(conf.Features.WindowLengthMs),
		Step:           config.Millis(conf.Features.StepMs),
		FPS:            conf.Features.FPS,
		Retain:         conf.Features.Retain,
		Silence:        conf.Interview.Silence,
		AutoSubmit:     autoSubmit,
		Seed:           conf.Scorer.Seed,
	}, orchestrator.Deps{
		Media:       media.NewAcquirer(&media.ReplayDevices{Path: frames}, media.NopSink{}, log),
		Constraints: media.DefaultConstraints(),
		Engine:      engine,
		Scorer:      scorer,
		Questions:   questions.NewAdaptive(client, picker, conf.Interview.AdaptiveTimeout, log),
		Bank:        bank,
		Store:       st,
		Log:         log,
	})
	defer o.Exit()

	o.Observe(printEvent)
	if err := attachSinks(ctx, conf, o, client, windowAnalysis, log); err != nil {
		return err
	}

	err = interviewLoop(ctx, o, conf.Paths.Outputs)
	if errors.Is(err, errExit) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return nil
	}
	return err
}

func newEngine(conf *config.Root, script string, audio []string) (speech.Engine, error) {
	switch {
	case script != "":
		return speech.LoadScript(script)
	case len(audio) > 0:
		base := conf.Services.ASR.URL
		if base == "" {
			base = conf.Services.Analysis.URL
		}
		return &speech.ASREngine{Client: clients.NewHTTP(base, 0), Files: audio, Pace: true}, nil
	}
	return nil, errors.New("one of --script or --audio is required")
}

// attachSinks wires the optional live consumers: the websocket dashboard, the
// MQTT window feed and per-window video analysis.
func attachSinks(ctx context.Context, conf *config.Root, o *orchestrator.Orchestrator, c *clients.HTTP, windowAnalysis bool, log logrus.FieldLogger) error {
	if addr := conf.Dashboard.Addr; addr != "" {
		hub := events.NewHub(log)
		srv := &http.Server{Addr: addr, Handler: hub.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("dashboard server stopped")
			}
		}()
		go func() {
			<-ctx.Done()
			hub.Close()
			_ = srv.Close()
		}()
		o.Observe(hub.Observe)
		log.WithField("addr", addr).Info("dashboard listening on /ws")
	}

	if conf.MQTT.Broker != "" {
		sink, err := events.DialMQTT(events.MQTTConfig{
			Broker:   conf.MQTT.Broker,
			ClientID: conf.MQTT.ClientID,
			Username: conf.MQTT.Username,
			Password: conf.MQTT.Password,
			Topic:    conf.MQTT.Topic,
		}, log)
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			sink.Close()
		}()
		o.Observe(sink.Observe)
	}

	if windowAnalysis {
		sink := events.NewHTTPSink(c, conf.Interview.AnalysisTimeout, log)
		go sink.Run(ctx)
		o.Observe(sink.Observe)
	}
	return nil
}

func interviewLoop(ctx context.Context, o *orchestrator.Orchestrator, outputs string) error {
	for {
		if err := ctx.Err(); err != nil {
			return errExit
		}

		var items []string
		switch o.State() {
		case orchestrator.NotStarted:
			items = []string{PromptStart, PromptExit}
		case orchestrator.Answering:
			items = []string{PromptSubmit, PromptSkip, PromptExit}
		case orchestrator.Reviewing:
			items = []string{PromptNext, PromptExit}
		case orchestrator.Complete:
			items = []string{PromptExport, PromptRestart, PromptExit}
		default:
			// countdown or scoring in progress
			time.Sleep(100 * time.Millisecond)
			continue
		}

		prompt := promptui.Select{Label: "Next step", Items: items}
		_, choice, err := prompt.Run()
		if err != nil {
			return err
		}
		if err := act(ctx, o, choice, outputs); err != nil {
			var te *orchestrator.TransitionError
			if errors.As(err, &te) || errors.Is(err, orchestrator.ErrExited) {
				// the interview moved on while the prompt was open
				continue
			}
			return err
		}
	}
}

func act(ctx context.Context, o *orchestrator.Orchestrator, choice, outputs string) error {
	switch choice {
	case PromptStart:
		err := o.Start(ctx)
		var de *media.DeviceError
		if errors.As(err, &de) {
			fmt.Println(de.Message())
			return errExit
		}
		return err
	case PromptSubmit:
		_, err := o.Submit(ctx)
		return err
	case PromptSkip:
		_, err := o.Skip(ctx)
		return err
	case PromptNext:
		err := o.Next(ctx)
		if err == nil && o.State() == orchestrator.Complete {
			printReport(o.Report())
		}
		return err
	case PromptExport:
		dir, err := o.Export(outputs)
		if err != nil {
			return err
		}
		fmt.Println("Report written to", dir)
		return nil
	case PromptRestart:
		return o.Restart()
	case PromptExit:
		o.Exit()
		return errExit
	}
	return nil
}

func printEvent(ev orchestrator.Event) {
	switch ev.Kind {
	case orchestrator.EventCountdown:
		if ev.Countdown > 0 {
			fmt.Printf("Starting in %d...\n", ev.Countdown)
		}
	case orchestrator.EventQuestion:
		fmt.Printf("\nQuestion %d: %s\n", ev.Index, ev.Question)
	case orchestrator.EventTranscript:
		fmt.Printf("  > %s\n", ev.Text)
	case orchestrator.EventListening:
		fmt.Println("  (stopped listening)")
	case orchestrator.EventError:
		fmt.Println("  !", ev.Error)
	case orchestrator.EventScore:
		s := ev.Score
		fmt.Printf("\nScore: %d/100 (%s)\n", s.Overall, s.Source)
		for _, k := range s.Scores.Keys() {
			fmt.Printf("  %-20s %3d\n", k, s.Scores[k])
		}
		if len(s.Strengths) > 0 {
			fmt.Println("  Strengths:", strings.Join(s.Strengths, "; "))
		}
		if len(s.Weaknesses) > 0 {
			fmt.Println("  Work on:", strings.Join(s.Weaknesses, "; "))
		}
	}
}

func printReport(r orchestrator.Report) {
	fmt.Printf("\nInterview complete: %d questions, average %d/100\n", r.Questions, r.Average)
	if len(r.Weaknesses) > 0 {
		fmt.Println("Focus areas:", strings.Join(r.Weaknesses, "; "))
	}
}
