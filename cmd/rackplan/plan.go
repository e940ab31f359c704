package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fentz26/rackplan/internal/planner"
	"github.com/fentz26/rackplan/internal/tui"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Allocate tasks and synthesize schedules",
	Long:  `Runs coarse task allocation followed by fine policy synthesis and regeneration, writes the schedules and records the run in the ledger.`,
	RunE:  runPlan,
}

var (
	planSeed     int64
	planTasks    int
	planOutput   string
	planTUI      bool
	planNoLedger bool
)

func init() {
	planCmd.Flags().Int64Var(&planSeed, "seed", 0, "Override the random seed")
	planCmd.Flags().IntVar(&planTasks, "tasks", 0, "Override the number of generated tasks")
	planCmd.Flags().StringVar(&planOutput, "output", "", "Override the schedule output directory")
	planCmd.Flags().BoolVar(&planTUI, "tui", false, "Show live progress in the terminal UI")
	planCmd.Flags().BoolVar(&planNoLedger, "no-ledger", false, "Do not record the run")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = planSeed
	}
	if planTasks > 0 {
		cfg.TaskCount = planTasks
		cfg.TaskList = nil
	}
	if planOutput != "" {
		cfg.OutputDir = planOutput
	}

	var opts []planner.Option
	if !planNoLedger {
		l, err := openLedger(cfg.Ledger)
		if err != nil {
			return err
		}
		defer l.Close()
		opts = append(opts, planner.WithLedger(l))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !planTUI {
		p, err := planner.New(cfg, append(opts, planner.WithReporter(&planner.LogReporter{}))...)
		if err != nil {
			return err
		}
		res, err := p.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Print(tui.RenderSummary(res, p.Tasks()))
		return nil
	}

	// Log lines would garble the progress view.
	log.SetOutput(io.Discard)
	defer log.SetOutput(os.Stderr)

	p, err := planner.New(cfg, opts...)
	if err != nil {
		return err
	}
	res, err := tui.Run(ctx, p.Tasks(), func(ctx context.Context, r planner.Reporter) (*planner.Result, error) {
		planner.WithReporter(r)(p)
		return p.Run(ctx)
	})
	if err != nil {
		return err
	}
	fmt.Print(tui.RenderSummary(res, p.Tasks()))
	return nil
}
