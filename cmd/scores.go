package cmd

import (
	"errors"
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thinkhire/interview-pipeline/orchestrator"
	"github.com/thinkhire/interview-pipeline/store"
)

var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Show the score history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, _, err := setup()
		if err != nil {
			return err
		}
		st, err := newStore(conf)
		if err != nil {
			return err
		}
		if wipe, _ := cmd.Flags().GetBool("clear"); wipe {
			return st.ClearSessionScores()
		}

		if u, ok, err := st.GetUser(); err != nil {
			return err
		} else if ok {
			fmt.Printf("Signed in as %s <%s>\n\n", u.Name, u.Email)
		}

		scores, err := st.GetSessionScores()
		if err != nil {
			return err
		}
		if len(scores) == 0 {
			fmt.Println("No scores yet.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tSCORE\tQUESTION")
		for _, s := range scores {
			fmt.Fprintf(w, "%s\t%d\t%s\n", s.Timestamp.Local().Format(time.DateTime), s.Score, s.Question)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d answers, average %d\n", len(scores), historyAverage(scores))

		if ids := st.Sessions(); len(ids) > 0 {
			fmt.Println("\nInterview sessions:")
			for _, id := range ids {
				fmt.Println(" ", id)
			}
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored user, auth token and score history",
	RunE: func(*cobra.Command, []string) error {
		conf, log, err := setup()
		if err != nil {
			return err
		}
		st, err := newStore(conf)
		if err != nil {
			return err
		}
		msg, err := logout(st)
		if err != nil {
			return err
		}
		log.Debug("session store cleared")
		fmt.Println(msg)
		return nil
	},
}

// logout clears the stored identity and history and describes who was
// signed out.
func logout(st *store.Session) (string, error) {
	u, ok, err := st.GetUser()
	if err != nil {
		return "", err
	}
	tok, err := st.AuthToken()
	if err != nil {
		return "", err
	}
	if err := st.Logout(); err != nil {
		return "", err
	}
	switch {
	case ok:
		return "Logged out " + u.Name + ".", nil
	case tok != "":
		return "Logged out.", nil
	}
	return "Not signed in; score history cleared.", nil
}

func historyAverage(scores []store.SessionScore) int {
	if len(scores) == 0 {
		return 0
	}
	total := 0
	for _, s := range scores {
		total += s.Score
	}
	return int(math.Round(float64(total) / float64(len(scores))))
}

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Write the report of a stored interview session",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		conf, log, err := setup()
		if err != nil {
			return err
		}
		st, err := newStore(conf)
		if err != nil {
			return err
		}
		ps, err := st.Performance(args[0])
		if err != nil {
			return err
		}
		if len(ps) == 0 {
			return errors.New("no scores stored for session " + args[0])
		}
		dir, err := orchestrator.WriteReport(conf.Paths.Outputs, orchestrator.Summarize(args[0], conf.Interview.Domain, ps))
		if err != nil {
			return err
		}
		log.WithField("dir", dir).Info("report written")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoresCmd, exportCmd, logoutCmd)
	scoresCmd.Flags().Bool("clear", false, "clear the score history")
}
