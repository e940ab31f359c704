// Package scheduler provides bounded worker pools with per-workload
// concurrency ceilings.
package scheduler

// Workload names used by the planner.
const (
	WorkloadLoad = "load"
	WorkloadSave = "save"
)

// Config defines the scheduler configuration.
type Config struct {
	// GlobalMax is the maximum number of concurrent workers across all workloads.
	GlobalMax int `yaml:"global_max"`
	// ByWorkload defines per-workload concurrency ceilings.
	ByWorkload map[string]int `yaml:"by_workload"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax: 30,
		ByWorkload: map[string]int{
			WorkloadLoad: 10,
			WorkloadSave: 30,
		},
	}
}

// GetWorkloadLimit returns the concurrency ceiling for a workload.
func (c *Config) GetWorkloadLimit(workload string) int {
	if limit, ok := c.ByWorkload[workload]; ok {
		return limit
	}
	// Default limit if not specified
	return 1
}
