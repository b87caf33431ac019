package baikon

import "testing"

func TestCronRunnerJobs(t *testing.T) {
	e := newTestEngine()
	r := NewCronRunner(e)

	job := CronJob{Name: "nightly", Cron: "0 3 * * *", Input: "report", Enabled: true}
	if err := r.AddJob(job); err != nil {
		t.Fatalf("AddJob() returned error: %v", err)
	}
	if err := r.AddJob(CronJob{Name: "paused", Cron: "* * * * *", Input: "x"}); err != nil {
		t.Fatalf("AddJob() disabled returned error: %v", err)
	}

	jobs := r.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("len(Jobs()) = %d, want 2", len(jobs))
	}

	// Replacing keeps a single entry.
	job.Input = "report --full"
	if err := r.AddJob(job); err != nil {
		t.Fatalf("AddJob() replace returned error: %v", err)
	}
	jobs = r.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("len(Jobs()) = %d after replace, want 2", len(jobs))
	}

	if err := r.AddJob(CronJob{Name: "bad", Cron: "not a cron", Enabled: true}); err == nil {
		t.Error("AddJob() should reject an invalid cron expression")
	}

	if err := r.RemoveJob("nightly"); err != nil {
		t.Fatalf("RemoveJob() returned error: %v", err)
	}
	if err := r.RemoveJob("paused"); err != nil {
		t.Fatalf("RemoveJob() disabled returned error: %v", err)
	}
	if err := r.RemoveJob("ghost"); err == nil {
		t.Error("RemoveJob() should fail for an unknown job")
	}
}
