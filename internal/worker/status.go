package worker

// PoolStatus is a snapshot of pool activity.
type PoolStatus struct {
	Running   bool
	Workers   int
	Busy      int
	Executed  int64
	LastError string
}

// Status returns the latest pool information.
func (p *Pool) Status() PoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	status := PoolStatus{
		Running:  p.running,
		Workers:  p.workers,
		Busy:     p.busy,
		Executed: p.executed,
	}
	if p.lastErr != nil {
		status.LastError = p.lastErr.Error()
	}
	return status
}

func (p *Pool) setLastError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Pool) setBusy(delta int) {
	p.mu.Lock()
	p.busy += delta
	p.mu.Unlock()
}
