package transcode

import "sync"

// Registry is the set of known jobs, indexed by session id and by output
// path. Only the latest job for a path is indexed by path.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	byPath map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{
		jobs:   make(map[string]*Job),
		byPath: make(map[string]*Job),
	}
}

func (r *Registry) Add(j *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.SessionID] = j
	r.byPath[j.OutputPath] = j
}

func (r *Registry) Get(sessionID string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[sessionID]
	return j, ok
}

func (r *Registry) FindByPath(outputPath string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.byPath[outputPath]
	return j, ok
}

func (r *Registry) Select(sel Selector) []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sel.kind == selectSession {
		if j, ok := r.jobs[sel.value]; ok {
			return []*Job{j}
		}
		return nil
	}

	var out []*Job
	for _, j := range r.jobs {
		if sel.Match(j) {
			out = append(out, j)
		}
	}
	return out
}

// Remove drops the job and reports whether this call removed it.
func (r *Registry) Remove(sessionID string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[sessionID]
	if !ok {
		return nil, false
	}
	delete(r.jobs, sessionID)
	if r.byPath[j.OutputPath] == j {
		delete(r.byPath, j.OutputPath)
	}
	return j, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
