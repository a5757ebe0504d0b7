package runner

import (
	"fmt"
	"sort"
	"sync"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// Registry holds jobs by name.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]port.Job
}

// NewRegistry creates a Registry holding jobs.
func NewRegistry(jobs ...port.Job) (*Registry, error) {
	r := &Registry{jobs: make(map[string]port.Job)}
	for _, j := range jobs {
		if err := r.Register(j); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds job. Names must be unique.
func (r *Registry) Register(job port.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.JobName()]; exists {
		return fmt.Errorf("job '%s' is already registered", job.JobName())
	}
	r.jobs[job.JobName()] = job
	return nil
}

// Get returns the job registered under name.
func (r *Registry) Get(name string) (port.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job '%s' is not registered", name)
	}
	return job, nil
}

// Names returns the registered job names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
