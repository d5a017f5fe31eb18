package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/motion.report/internal/httputil"
	"github.com/banshee-data/motion.report/internal/motion"
)

const defaultURL = "http://localhost:8080"

func newLiveCmd() *cobra.Command {
	var (
		url      string
		interval time.Duration
		count    int
	)
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Poll a running motiond and print its metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := httputil.NewClient(url, nil)
			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MODE\tACTIVE\tFRAMES\tAMPLITUDE\tTREND\tSTABILITY\tSYMMETRY\tSTEPS\tFEEDBACK\tERROR")

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for i := 0; count <= 0 || i < count; i++ {
				if i > 0 {
					select {
					case <-cmd.Context().Done():
						return tw.Flush()
					case <-ticker.C:
					}
				}
				r, err := client.Metrics(cmd.Context())
				if err != nil {
					tw.Flush()
					return err
				}
				writeReadingRow(tw, r)
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", defaultURL, "Base URL of motiond")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval")
	cmd.Flags().IntVar(&count, "count", 0, "Number of readings to print (0 polls until interrupted)")
	return cmd
}

func writeReadingRow(w io.Writer, r httputil.Reading) {
	var feedback []string
	if r.Feedback.Haptic {
		feedback = append(feedback, "haptic")
	}
	if r.Feedback.GuidePath {
		feedback = append(feedback, "guide")
	}
	fb := "-"
	if len(feedback) > 0 {
		fb = fmt.Sprint(feedback)
	}
	errText := "-"
	if r.LastError != nil {
		errText = r.LastError.Kind
	}
	fmt.Fprintf(w, "%s\t%t\t%d\t%.4f\t%s\t%.3f\t%.3f\t%d\t%s\t%s\n",
		r.Mode, r.IsActive, r.FramesProcessed, r.TremorAmplitude, r.TremorTrend,
		r.GaitStabilityIndex, r.GaitSymmetryIndex, r.SessionStepCount, fb, errText)
}

func newControlCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Drive the session lifecycle of a running motiond",
	}
	cmd.PersistentFlags().StringVar(&url, "url", defaultURL, "Base URL of motiond")

	action := func(use, short string, call func(*httputil.Client, *cobra.Command) (httputil.Reading, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := call(httputil.NewClient(url, nil), cmd)
				if err != nil {
					return err
				}
				return printReading(cmd.OutOrStdout(), r)
			},
		}
	}

	cmd.AddCommand(
		action("start", "Start a session", func(c *httputil.Client, cmd *cobra.Command) (httputil.Reading, error) {
			return c.Start(cmd.Context())
		}),
		action("stop", "Stop the running session", func(c *httputil.Client, cmd *cobra.Command) (httputil.Reading, error) {
			return c.Stop(cmd.Context())
		}),
		action("reset", "Clear all windows and metrics", func(c *httputil.Client, cmd *cobra.Command) (httputil.Reading, error) {
			return c.Reset(cmd.Context())
		}),
		&cobra.Command{
			Use:       "mode tremor|gait",
			Short:     "Switch the analysis mode",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"tremor", "gait"},
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := motion.ParseMode(args[0])
				if err != nil {
					return err
				}
				r, err := httputil.NewClient(url, nil).SetMode(cmd.Context(), m)
				if err != nil {
					return err
				}
				return printReading(cmd.OutOrStdout(), r)
			},
		},
	)
	return cmd
}

func printReading(w io.Writer, r httputil.Reading) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
