package planner

import (
	"log"
	"sync"
)

// Reporter receives progress events. Step may be called from pooled
// workers, so implementations must be safe for concurrent use.
type Reporter interface {
	Stage(name string, total int)
	Step(msg string)
	Done(err error)
}

// LogReporter writes progress to the standard logger.
type LogReporter struct {
	mu    sync.Mutex
	stage string
	total int
	count int
}

func (r *LogReporter) Stage(name string, total int) {
	r.mu.Lock()
	r.stage, r.total, r.count = name, total, 0
	r.mu.Unlock()
	log.Printf("Stage %s (%d steps)", name, total)
}

func (r *LogReporter) Step(msg string) {
	r.mu.Lock()
	r.count++
	stage, count, total := r.stage, r.count, r.total
	r.mu.Unlock()
	log.Printf("[%s %d/%d] %s", stage, count, total, msg)
}

func (r *LogReporter) Done(err error) {
	if err != nil {
		log.Printf("Planning failed: %v", err)
		return
	}
	log.Println("Planning complete")
}

type nopReporter struct{}

func (nopReporter) Stage(string, int) {}
func (nopReporter) Step(string)       {}
func (nopReporter) Done(error)        {}
