package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/rackplan/internal/planner"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(cyanColor)
	okStyle     = lipgloss.NewStyle().Foreground(successColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
)

// RenderSummary renders the allocation table, the per-agent task lists
// and costs and the written schedule files.
func RenderSummary(res *planner.Result, tasks []planner.TaskSpec) string {
	if res == nil || res.Allocation == nil {
		return mutedStyle.Render("No allocation.") + "\n"
	}
	var b strings.Builder

	if res.RunID != "" {
		b.WriteString(mutedStyle.Render("run "+res.RunID) + "\n\n")
	}

	b.WriteString(fmt.Sprintf("%s  %s  %s  %s  %s  %s\n",
		headerStyle.Render(fmt.Sprintf("%-5s", "TASK")),
		headerStyle.Render(fmt.Sprintf("%-8s", "RACK")),
		headerStyle.Render(fmt.Sprintf("%-4s", "FEED")),
		headerStyle.Render(fmt.Sprintf("%-5s", "AGENT")),
		headerStyle.Render(fmt.Sprintf("%-6s", "POLICY")),
		headerStyle.Render(fmt.Sprintf("%-8s", "COST")),
	))
	for _, a := range res.Allocation.Assignments {
		b.WriteString(fmt.Sprintf("%-5d  %-8s  %-4d  %-5d  %-6d  %-8.2f\n",
			a.Task, a.Rack, a.Feed, a.Agent, a.Policy, a.Cost))
	}
	b.WriteString("\n")

	for agent, ts := range res.PerAgent {
		cost := 0.0
		if agent < len(res.AgentCosts) {
			cost = res.AgentCosts[agent]
		}
		line := fmt.Sprintf("agent %d: tasks %v, cost %.2f", agent, ts, cost)
		if len(ts) == 0 {
			b.WriteString(mutedStyle.Render(line) + "\n")
			continue
		}
		b.WriteString(line + "\n")
	}

	if len(res.Files) > 0 {
		b.WriteString("\n" + okStyle.Render(fmt.Sprintf("✓ %d schedules written", len(res.Files))) + "\n")
		for _, f := range res.Files {
			b.WriteString(mutedStyle.Render("  "+f.Path) + "\n")
		}
	}
	if len(tasks) > 0 && len(tasks) != len(res.Allocation.Assignments) {
		b.WriteString(lipgloss.NewStyle().Foreground(errorColor).Render(
			fmt.Sprintf("%d of %d tasks allocated", len(res.Allocation.Assignments), len(tasks))) + "\n")
	}
	return b.String()
}
