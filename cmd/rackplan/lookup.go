package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fentz26/rackplan/internal/schedule"
	"github.com/fentz26/rackplan/internal/warehouse"
	"github.com/spf13/cobra"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [schedule-file]",
	Short: "Look up the action for a robot state in a schedule file",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

var (
	lookupX, lookupY int
	lookupDir        int
	lookupCarrying   bool
	lookupPackAvail  bool
	lookupPackX      int
	lookupPackY      int
	lookupQ          int
	lookupJSON       bool
)

func init() {
	lookupCmd.Flags().IntVar(&lookupX, "x", 0, "Robot x")
	lookupCmd.Flags().IntVar(&lookupY, "y", 0, "Robot y")
	lookupCmd.Flags().IntVar(&lookupDir, "dir", int(warehouse.Down), "Heading (0 right, 1 down, 2 left, 3 up)")
	lookupCmd.Flags().BoolVar(&lookupCarrying, "carrying", false, "Robot is carrying a pack")
	lookupCmd.Flags().BoolVar(&lookupPackAvail, "pack-available", false, "A pack lies on the floor")
	lookupCmd.Flags().IntVar(&lookupPackX, "pack-x", -1, "Floor pack x")
	lookupCmd.Flags().IntVar(&lookupPackY, "pack-y", -1, "Floor pack y")
	lookupCmd.Flags().IntVar(&lookupQ, "q", 0, "Automaton state")
	lookupCmd.Flags().BoolVar(&lookupJSON, "json", false, "Print the full record as JSON")
}

func runLookup(cmd *cobra.Command, args []string) error {
	sched, err := schedule.ReadFile(args[0])
	if err != nil {
		return err
	}
	dir := warehouse.Direction(lookupDir)
	if !dir.Valid() {
		return fmt.Errorf("invalid heading %d", lookupDir)
	}
	state := warehouse.FineState{
		Dir:           dir,
		Pos:           warehouse.Point{X: lookupX, Y: lookupY},
		Carrying:      lookupCarrying,
		PackAvailable: lookupPackAvail,
		PackPos:       warehouse.NoPack,
	}
	if lookupPackAvail {
		state.PackPos = warehouse.Point{X: lookupPackX, Y: lookupPackY}
	}

	rec, ok := sched.Lookup(state, lookupQ)
	if !ok {
		return fmt.Errorf("no record for %+v in automaton state %d", state, lookupQ)
	}
	if lookupJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	fmt.Printf("%s (%d)\n", warehouse.FineActionName(rec.Action), rec.Action)
	return nil
}
