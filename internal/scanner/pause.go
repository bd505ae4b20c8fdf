package scanner

import (
	"context"
	"sync"
	"time"
)

// Pauser gates workers between probes. While paused, Wait blocks until the
// scan is resumed or the context ends. Time spent paused is tracked so it
// can be left out of the scan's elapsed time.
type Pauser struct {
	mu          sync.Mutex
	resume      chan struct{} // closed while running
	paused      bool
	pausedSince time.Time
	totalPaused time.Duration
}

// NewPauser returns a Pauser in the running state.
func NewPauser() *Pauser {
	ch := make(chan struct{})
	close(ch)
	return &Pauser{resume: ch}
}

// Wait returns immediately when running. When paused it blocks until Toggle
// resumes the scan, returning ctx.Err() if ctx ends first.
func (p *Pauser) Wait(ctx context.Context) error {
	p.mu.Lock()
	gate := p.resume
	p.mu.Unlock()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Toggle flips between paused and running and reports the new state.
func (p *Pauser) Toggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.totalPaused += time.Since(p.pausedSince)
		p.paused = false
		close(p.resume)
	} else {
		p.paused = true
		p.pausedSince = time.Now()
		p.resume = make(chan struct{})
	}
	return p.paused
}

// IsPaused reports whether the scan is paused.
func (p *Pauser) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// PausedDuration returns the accumulated pause time, including a pause in
// progress.
func (p *Pauser) PausedDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.totalPaused
	if p.paused {
		d += time.Since(p.pausedSince)
	}
	return d
}
