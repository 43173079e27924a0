package cron

import "context"

// Job is one maintenance task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a plain function into a named Job.
func JobFunc(name string, run func(context.Context) error) Job {
	return funcJob{name: name, run: run}
}

type funcJob struct {
	name string
	run  func(context.Context) error
}

func (f funcJob) Name() string                  { return f.name }
func (f funcJob) Run(ctx context.Context) error { return f.run(ctx) }

// Registry holds jobs by name. Order of first registration is kept, and
// registering a name again swaps the job in place.
type Registry struct {
	order  []string
	byName map[string]Job
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{byName: make(map[string]Job)}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register adds or replaces job; nil is ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	name := job.Name()
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = job
}

// Jobs returns a snapshot in registration order.
func (r *Registry) Jobs() []Job {
	out := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
