package main

import (
	"fmt"
	"os"

	"github.com/fentz26/rackplan/internal/planner"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the planner config",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config to --config",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Validate and print the effective config",
	RunE:  runConfigShow,
}

var configForce bool

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	if err := planner.SaveConfig(configPath, planner.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := planner.New(cfg)
	if err != nil {
		return err
	}
	l := p.Layout()
	fmt.Printf("Grid:      %dx%d (grid square %d)\n", cfg.Width, cfg.Height, cfg.GridSquare)
	fmt.Printf("Racks:     %d\n", len(l.Racks))
	fmt.Printf("Corridors: %d\n", len(l.Corridors))
	fmt.Printf("Feeds:     %v\n", l.FeedPoints)
	fmt.Printf("Starts:    %v\n", p.Starts())
	fmt.Printf("Queues:    %v\n", l.QueuePoints)
	fmt.Printf("Tasks:     %v\n", p.Tasks())
	fmt.Printf("Output:    %s\n", cfg.OutputDir)
	return nil
}
