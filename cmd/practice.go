package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/thinkhire/interview-pipeline/clients"
	"github.com/thinkhire/interview-pipeline/practice"
)

const (
	PromptAnother = "Another topic"
	PromptNextQ   = "Next question"
	PromptDomain  = "Change domain"
)

var gdCmd = &cobra.Command{
	Use:   "gd",
	Short: "Practice a timed group discussion topic",
	RunE: func(*cobra.Command, []string) error {
		return quit(runGD())
	},
}

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Answer knowledge check questions for a domain",
	RunE: func(*cobra.Command, []string) error {
		return quit(runQuiz())
	},
}

func init() {
	rootCmd.AddCommand(gdCmd, quizCmd)
}

func quit(err error) error {
	if errors.Is(err, errExit) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return nil
	}
	return err
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return &practice.ValidationError{Field: field}
		}
		return nil
	}
}

func runGD() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conf, log, err := setup()
	if err != nil {
		return err
	}
	bank, err := newBank(ctx, conf, log)
	if err != nil {
		return err
	}
	gd := practice.NewGroupDiscussion(clients.NewHTTP(conf.Services.Analysis.URL, 0), bank, conf.Scorer.Seed, log)

	for {
		fmt.Printf("\nTopic: %s\nYou have %s.\n", gd.NewTopic(), gd.Remaining())
		answer, err := (&promptui.Prompt{Label: "Your answer", Validate: required("answer")}).Run()
		if err != nil {
			return err
		}
		if gd.Remaining() == 0 {
			fmt.Println("Time is up; submitting what you wrote.")
		}
		res, err := gd.Submit(ctx, answer)
		if err != nil {
			return err
		}
		printResult(res)

		_, choice, err := (&promptui.Select{Label: "Next step", Items: []string{PromptAnother, PromptExit}}).Run()
		if err != nil || choice == PromptExit {
			return errExit
		}
	}
}

func runQuiz() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conf, log, err := setup()
	if err != nil {
		return err
	}
	bank, err := newBank(ctx, conf, log)
	if err != nil {
		return err
	}
	st, err := newStore(conf)
	if err != nil {
		return err
	}
	kc := practice.NewKnowledgeCheck(clients.NewHTTP(conf.Services.Analysis.URL, 0), bank, st, log)

	pickDomain := func() error {
		_, domain, err := (&promptui.Select{Label: "Domain", Items: bank.Bank().Domains()}).Run()
		if err != nil {
			return err
		}
		kc.SelectDomain(domain)
		return nil
	}
	if err := pickDomain(); err != nil {
		return err
	}

	for {
		q, i := kc.Question()
		fmt.Printf("\nQuestion %d: %s\n", i+1, q)
		answer, err := (&promptui.Prompt{Label: "Your answer", Validate: required("answer")}).Run()
		if err != nil {
			return err
		}
		res, _, err := kc.Submit(ctx, answer)
		if err != nil {
			// shown to the user, who can retry or move on
			fmt.Println("Error:", err)
		} else {
			printResult(res)
		}

		_, choice, err := (&promptui.Select{Label: "Next step", Items: []string{PromptNextQ, PromptDomain, PromptExit}}).Run()
		if err != nil {
			return err
		}
		switch choice {
		case PromptNextQ:
			kc.Advance()
		case PromptDomain:
			if err := pickDomain(); err != nil {
				return err
			}
		default:
			return errExit
		}
	}
}

func printResult(r *practice.Result) {
	fmt.Printf("\nScore: %d/100", r.Score)
	if r.Mock {
		fmt.Print(" (offline feedback)")
	}
	fmt.Println()
	for _, l := range []struct {
		title string
		items []string
	}{
		{"Strengths", r.Strengths},
		{"Work on", r.Weaknesses},
		{"Suggestions", r.Suggestions},
	} {
		if len(l.items) > 0 {
			fmt.Printf("  %s: %s\n", l.title, strings.Join(l.items, "; "))
		}
	}
}
