package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/EdinaDepner/CadenceCoach/internal/simulate"
)

func newSimulateCmd() *cobra.Command {
	var (
		cfg     simulate.Config
		profile string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Stream a synthetic run to a live service in real time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := simulate.ParseProfile(profile)
			if err != nil {
				return err
			}
			cfg.Profile = p
			if _, err := simulate.Run(cmd.Context(), &cfg); err != nil {
				return fmt.Errorf("simulate: %w", err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", simulate.DefaultBaseURL, "Base URL of the service")
	f.StringVarP(&profile, "profile", "p", "intervals", "Profile name or DURATION@SPM[~JITTER] segments")
	f.Uint64Var(&cfg.Seed, "seed", 1, "Seed for step jitter")
	f.IntVar(&cfg.ParticipantID, "participant", 0, "Participant id for the session (0 uses the selector)")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "Concurrent in-flight step requests")
	f.DurationVar(&cfg.Timeout, "timeout", simulate.DefaultTimeout, "HTTP request timeout")
	f.BoolVar(&cfg.EventIDs, "event-ids", true, "Attach a unique event id to every step")
	f.BoolVar(&cfg.ManageSession, "session", true, "Start a session before the run and stop it after")
	return cmd
}
