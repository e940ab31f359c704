package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fentz26/rackplan/internal/controlplane"
	"github.com/fentz26/rackplan/internal/models"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [run-id]",
	Short: "Show a recorded run and its allocations",
	Long:  `Shows a recorded run, the latest completed one when no ID is given, with its allocations and schedule files.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

// scheduleLister is implemented by ledgers that can list schedule files.
type scheduleLister interface {
	ListSchedules(runID string) ([]models.ScheduleFile, error)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, err := openLedger(cfg.Ledger)
	if err != nil {
		return err
	}
	defer l.Close()

	id := controlplane.LatestRun
	if len(args) == 1 {
		id = args[0]
	}
	run, allocs, err := controlplane.NewService(l).Allocations(id)
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Status:   %s\n", run.Status)
	fmt.Printf("Seed:     %d\n", run.Seed)
	fmt.Printf("Fleet:    %d agents, %d tasks\n", run.Agents, run.Tasks)
	fmt.Printf("Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if run.Error != "" {
		fmt.Printf("Error:    %s\n", run.Error)
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tAGENT\tPOLICY\tRACK\tFEED\tCOST\tPROB")
	for _, a := range allocs {
		fmt.Fprintf(w, "%d\t%d\t%d\t(%d, %d)\t%d\t%.2f\t%.2f\n", a.Task, a.Agent, a.Policy, a.RackX, a.RackY, a.Feed, a.Cost, a.Probability)
	}
	w.Flush()

	lister, ok := l.(scheduleLister)
	if !ok {
		return nil
	}
	files, err := lister.ListSchedules(run.ID)
	if err != nil {
		return err
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tAGENT\tTASK\tRECORDS\tOBJECTIVE\tPATH")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.2f\t%s\n", f.Kind, f.Agent, f.Task, f.Records, f.Objective, f.Path)
	}
	return w.Flush()
}
