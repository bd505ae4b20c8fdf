package scanner

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// backoffStart is the rate an unlimited scan drops to on its first
	// throttle signal.
	backoffStart rate.Limit = 20
	minRate      rate.Limit = 0.5
	// recoverAfter is how many healthy answers in a row double the rate.
	recoverAfter = 10
)

// Throttler paces requests across all workers. With adaptive mode on, 429 and
// 503 answers (or a run of transport failures) halve the rate; every run of
// healthy answers doubles it back toward the configured limit.
type Throttler struct {
	limiter  *rate.Limiter
	base     rate.Limit
	adaptive bool
	log      logrus.FieldLogger

	mu          sync.Mutex
	consecutive int
	healthy     int
}

// NewThrottler returns a throttler allowing rps requests per second. rps <= 0
// means unlimited.
func NewThrottler(rps float64, adaptive bool, log logrus.FieldLogger) *Throttler {
	base := rate.Inf
	if rps > 0 {
		base = rate.Limit(rps)
	}
	return &Throttler{
		limiter:  rate.NewLimiter(base, 1),
		base:     base,
		adaptive: adaptive,
		log:      log,
	}
}

// Wait blocks until the next request may be sent.
func (t *Throttler) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

// Limit returns the current rate.
func (t *Throttler) Limit() rate.Limit {
	return t.limiter.Limit()
}

// RecordStatus feeds a response status into the adaptive controller.
func (t *Throttler) RecordStatus(status int) {
	if t == nil || !t.adaptive {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if status == 429 || status == 503 {
		t.consecutive++
		t.healthy = 0
		t.backoff("rate limited (HTTP %d)", status)
		return
	}
	t.consecutive = 0
	if t.limiter.Limit() == t.base {
		return
	}
	t.healthy++
	if t.healthy >= recoverAfter {
		t.healthy = 0
		t.recover()
	}
}

// RecordError treats three transport failures in a row as a throttle signal.
func (t *Throttler) RecordError() {
	if t == nil || !t.adaptive {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutive++
	t.healthy = 0
	if t.consecutive >= 3 {
		t.backoff("%d consecutive errors", t.consecutive)
	}
}

func (t *Throttler) backoff(format string, args ...any) {
	cur := t.limiter.Limit()
	next := cur / 2
	if cur == rate.Inf {
		next = backoffStart
	}
	if next < minRate {
		next = minRate
	}
	if next != cur {
		t.limiter.SetLimit(next)
		t.log.WithField("rate", float64(next)).Warnf("backing off: "+format, args...)
	}
}

func (t *Throttler) recover() {
	cur := t.limiter.Limit()
	if cur == t.base {
		return
	}
	next := cur * 2
	switch {
	case t.base == rate.Inf && next > 4*backoffStart:
		next = rate.Inf
	case t.base != rate.Inf && next > t.base:
		next = t.base
	}
	t.limiter.SetLimit(next)
	t.log.WithField("rate", float64(next)).Info("recovering request rate")
}
