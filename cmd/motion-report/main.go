package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/report"
	"github.com/banshee-data/motion.report/internal/version"
)

var errNoSessions = errors.New("no sessions recorded")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:   "motion-report",
		Short: "Inspect and plot recorded motion sessions",
		Long: `motion-report reads the session database written by motiond and
lists sessions, summarises their metrics or renders them as PNG plots.`,
		SilenceUsage: true,
		Version:      version.String(),
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "motion.db", "Session database written by motiond")

	open := func() (*db.DB, error) {
		if _, err := os.Stat(dbPath); err != nil {
			return nil, fmt.Errorf("database %s: %w", dbPath, err)
		}
		return db.NewDB(dbPath)
	}

	root.AddCommand(newSessionsCmd(open), newPlotCmd(open), newSummaryCmd(open))
	root.AddCommand(newLiveCmd(), newControlCmd())
	return root
}

type opener func() (*db.DB, error)

func newSessionsCmd(open opener) *cobra.Command {
	var (
		limit   int
		asJSON  bool
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.Sessions(limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sessions)
			}
			return writeSessionTable(cmd.OutOrStdout(), store, sessions, summary)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().BoolVar(&summary, "summary", false, "Add per-session metric summaries")
	return cmd
}

func writeSessionTable(out io.Writer, store *db.DB, sessions []db.Session, withSummary bool) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "ID\tMODE\tSTARTED\tDURATION\tFRAMES\tSTEPS"
	if withSummary {
		header += "\tSAMPLES\tMEAN AMP\tPEAK AMP\tMIN STAB\tMEAN SYM"
	}
	fmt.Fprintln(tw, header)

	for _, s := range sessions {
		duration := "open"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d",
			s.ID, s.Mode, s.StartedAt.Local().Format("2006-01-02 15:04:05"), duration, s.FramesProcessed, s.StepCount)
		if withSummary {
			samples, err := store.Samples(s.ID)
			if err != nil {
				return err
			}
			sum := report.Summarize(samples)
			fmt.Fprintf(tw, "\t%d\t%.3f\t%.3f\t%.3f\t%.3f",
				sum.Samples, sum.MeanAmplitude, sum.PeakAmplitude, sum.MinStability, sum.MeanSymmetry)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// resolveSession returns the named session, or the newest one when id is
// empty.
func resolveSession(store *db.DB, id string) (*db.Session, error) {
	if id != "" {
		return store.SessionByID(id)
	}
	latest, err := store.Sessions(1)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return nil, errNoSessions
	}
	return &latest[0], nil
}

func newPlotCmd(open opener) *cobra.Command {
	var sessionID, out string
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render a session's metrics to a PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := resolveSession(store, sessionID)
			if err != nil {
				return err
			}
			samples, err := store.Samples(sess.ID)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("session-%s.png", sess.ID)
			}
			if err := report.SavePNG(out, *sess, samples); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d samples)\n", out, len(samples))
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (defaults to the newest session)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output PNG path (defaults to session-<id>.png)")
	return cmd
}

func newSummaryCmd(open opener) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a JSON summary of a session's metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := resolveSession(store, sessionID)
			if err != nil {
				return err
			}
			samples, err := store.Samples(sess.ID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Session *db.Session    `json:"session"`
				Summary report.Summary `json:"summary"`
			}{sess, report.Summarize(samples)})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (defaults to the newest session)")
	return cmd
}
