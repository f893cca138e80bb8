package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	service "github.com/EdinaDepner/CadenceCoach/internal/app"
	"github.com/EdinaDepner/CadenceCoach/internal/simulate"
)

func newReplayCmd() *cobra.Command {
	var (
		cfg      simulate.ReplayConfig
		profile  string
		tick     time.Duration
		window   time.Duration
		noDeltas bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run a synthetic profile offline and write its activity log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := simulate.ParseProfile(profile)
			if err != nil {
				return err
			}
			cfg.Profile = p
			cfg.Options = []service.Option{
				service.WithTickInterval(tick),
				service.WithCalibrationWindow(window),
				service.WithDeltaDetection(!noDeltas),
			}

			res, err := simulate.Replay(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("replay: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s: %d steps, baseline %d spm, %d rows\n",
				res.Session.ID, res.Steps, res.Baseline, len(res.Records))
			for _, tr := range res.Transitions {
				fmt.Fprintf(out, "  %4ds  %-4s -> %-4s  %d spm\n", tr.ElapsedSec, tr.From, tr.To, tr.Cadence)
			}
			if res.LogPath != "" {
				fmt.Fprintf(out, "log written to %s\n", res.LogPath)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&profile, "profile", "p", "intervals", "Profile name or DURATION@SPM[~JITTER] segments")
	f.Uint64Var(&cfg.Seed, "seed", 1, "Seed for step jitter")
	f.IntVar(&cfg.ParticipantID, "participant", 1, "Participant id for the session")
	f.StringVar(&cfg.LogDir, "log-dir", "logs", "Directory for the CSV activity log (empty to skip)")
	f.DurationVar(&tick, "tick", 2*time.Second, "Monitoring tick interval")
	f.DurationVar(&window, "window", 30*time.Second, "Baseline calibration window")
	f.BoolVar(&noDeltas, "no-delta-detection", false, "Disable the step-to-step rise/drop rule")
	return cmd
}
