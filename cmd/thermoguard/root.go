package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Agrid-Dev/thermoguard/cmd/app"
	"github.com/Agrid-Dev/thermoguard/internal/logger"
	"github.com/Agrid-Dev/thermoguard/internal/schedule"
)

var (
	configPath string
	checkAt    string

	rootCmd = &cobra.Command{
		Use:   "thermoguard",
		Short: "Guard a climate device with safety limits, a schedule and runtime tracking.",
		Long: `Runs a simulated thermostat behind the guard.

The guard forces heating or cooling while the device is off and the room
leaves the configured safety band, applies the time-of-day schedule with
manual overrides held until the next scheduled event, and keeps today's
heating and cooling hours.

Configuration is read from the file given with --config (YAML or JSON) and
from THERMOGUARD_* environment variables. Safety bounds and the schedule
are reloaded when the file changes.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.Load(configPath)
			if err != nil {
				return err
			}
			level, ok := logger.ParseLevel(cfg.LogLevel)
			log := logger.New(level)
			defer func() { _ = log.Sync() }()
			if !ok {
				log.Warnw("unknown log level, using info", "log_level", cfg.LogLevel)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Infow("thermoguard starting", "device_id", cfg.DeviceID, "store", cfg.Store.Kind)
			if err := app.Run(ctx, cfg, configPath, log); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Infow("thermoguard stopped")
			return nil
		},
	}

	checkScheduleCmd = &cobra.Command{
		Use:   "check-schedule <file>",
		Short: "Validate a schedule file and print the resolved week.",
		Long: `Parses a schedule document (YAML or JSON mapping of weekday keys to events)
and prints the events that apply on each day. With --at, also prints the
event in effect at that time and the next one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readSchedule(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range week {
				fmt.Fprintf(out, "%-9s", strings.ToLower(d.String()))
				for _, ev := range s.EventsOn(d) {
					fmt.Fprintf(out, "  %s %s", ev.At, ev.Directive())
				}
				fmt.Fprintln(out)
			}

			if checkAt == "" {
				return nil
			}
			now, err := time.ParseInLocation("2006-01-02T15:04", checkAt, time.Local)
			if err != nil {
				return fmt.Errorf("--at: expected YYYY-MM-DDTHH:MM: %w", err)
			}
			r := schedule.NewResolver(s, nil)
			if ev, at, ok := r.Current(now); ok {
				fmt.Fprintf(out, "current: %s (since %s)\n", ev.Directive(), at.Format(time.RFC3339))
			} else {
				fmt.Fprintln(out, "current: none")
			}
			if ev, at, ok := r.Next(now); ok {
				fmt.Fprintf(out, "next:    %s (at %s)\n", ev.Directive(), at.Format(time.RFC3339))
			}
			return nil
		},
	}
)

var week = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

func readSchedule(path string) (schedule.Schedule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return schedule.Schedule{}, fmt.Errorf("read schedule: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return schedule.ParseJSON(b)
	default:
		return schedule.ParseYAML(b)
	}
}

// Execute runs the CLI and exits with a non-zero status on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // cobra wiring
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file (.yaml/.yml/.json)")
	checkScheduleCmd.Flags().StringVar(&checkAt, "at", "", "local time to resolve, e.g. 2026-01-12T07:00")
	rootCmd.AddCommand(checkScheduleCmd)
}
