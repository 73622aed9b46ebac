package cron

import (
	"context"
	"time"
)

const defaultJobEvery = 24 * time.Hour

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job   Job
	every time.Duration
}

// Registry tracks registered cron jobs and how often each one is due.
type Registry struct {
	entries []entry
}

// NewRegistry builds a registry preloaded with daily jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job that runs once a day.
func (r *Registry) Register(job Job) {
	r.RegisterEvery(job, defaultJobEvery)
}

// RegisterEvery adds a job that is due every interval.
func (r *Registry) RegisterEvery(job Job, every time.Duration) {
	if job == nil {
		return
	}
	if every <= 0 {
		every = defaultJobEvery
	}
	r.entries = append(r.entries, entry{job: job, every: every})
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.entries))
	for i, e := range r.entries {
		jobs[i] = e.job
	}
	return jobs
}

func (r *Registry) schedule() []entry {
	out := make([]entry, len(r.entries))
	copy(out, r.entries)
	return out
}
