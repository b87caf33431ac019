package baikon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// CronJob feeds a scripted input into the engine on a cron cadence. It
// complements timer triggers for host-defined schedules that need more
// than fixed intervals.
type CronJob struct {
	Name    string
	Cron    string // standard cron expression
	Input   string
	UserID  string
	Enabled bool
}

// CronRunner drives CronJobs against an engine.
type CronRunner struct {
	c      *cron.Cron
	engine *Engine
	logger *slog.Logger

	mu      sync.Mutex
	jobs    []CronJob
	entries map[string]cron.EntryID // job name → cron entry ID
}

// NewCronRunner creates a runner bound to an engine.
func NewCronRunner(engine *Engine) *CronRunner {
	return &CronRunner{
		c:       cron.New(),
		engine:  engine,
		logger:  engine.logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins the cron runner and blocks until ctx is cancelled.
func (r *CronRunner) Start(ctx context.Context) {
	r.c.Start()
	r.logger.Info("cron runner started")
	<-ctx.Done()
	r.c.Stop()
	r.logger.Info("cron runner stopped")
}

// AddJob adds a job to the runner. If a job with the same name already
// exists it is replaced. Disabled jobs are kept in the list without a
// cron entry so they can be enabled later.
func (r *CronRunner) AddJob(job CronJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.entries[job.Name]; ok {
		r.c.Remove(id)
		delete(r.entries, job.Name)
		r.jobs = removeJobByName(r.jobs, job.Name)
	}

	if !job.Enabled {
		r.jobs = append(r.jobs, job)
		return nil
	}

	entryID, err := r.c.AddFunc(job.Cron, r.makeFunc(job))
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", job.Cron, err)
	}

	r.entries[job.Name] = entryID
	r.jobs = append(r.jobs, job)
	r.logger.Info("cron job added", "name", job.Name, "cron", job.Cron)
	return nil
}

// RemoveJob removes a job by name.
func (r *CronRunner) RemoveJob(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.entries[name]
	if !ok {
		// May exist as a disabled job (no cron entry).
		found := false
		for _, j := range r.jobs {
			if j.Name == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("cron job %q not found", name)
		}
	} else {
		r.c.Remove(id)
		delete(r.entries, name)
	}

	r.jobs = removeJobByName(r.jobs, name)
	r.logger.Info("cron job removed", "name", name)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *CronRunner) Jobs() []CronJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CronJob(nil), r.jobs...)
}

func (r *CronRunner) makeFunc(job CronJob) func() {
	return func() {
		fc := r.engine.CreateContext(job.UserID, "")
		responses := r.engine.ProcessInput(context.Background(), job.Input, fc)
		r.logger.Info("cron job ran",
			"name", job.Name, "input", job.Input, "responses", len(responses))
	}
}

func removeJobByName(jobs []CronJob, name string) []CronJob {
	out := jobs[:0]
	for _, j := range jobs {
		if j.Name != name {
			out = append(out, j)
		}
	}
	return out
}
