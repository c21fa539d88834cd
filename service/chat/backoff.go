package chat

import (
	"math/rand"
	"sync"
	"time"

	"PPClient/tools/clock"
)

// Backoff computes reconnect delays: min(Cap, Base*2^n) plus uniform jitter in [0, Jitter).
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter time.Duration
	// Rand returns a value in [0,1). nil uses a package source.
	Rand func() float64
}

var (
	rndMu sync.Mutex
	rnd   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func defaultRand() float64 {
	rndMu.Lock()
	defer rndMu.Unlock()
	return rnd.Float64()
}

// Exp returns the capped exponential part for n prior attempts.
func (b Backoff) Exp(n int) time.Duration {
	d := b.Base
	if d <= 0 {
		return 0
	}
	for i := 0; i < n && d < b.Cap; i++ {
		d *= 2
	}
	if b.Cap > 0 && d > b.Cap {
		d = b.Cap
	}
	return d
}

// Delay returns Exp(n) plus jitter.
func (b Backoff) Delay(n int) time.Duration {
	d := b.Exp(n)
	if b.Jitter > 0 {
		r := b.Rand
		if r == nil {
			r = defaultRand
		}
		d += time.Duration(r() * float64(b.Jitter))
	}
	return d
}

// ===== scheduled action slot =====

type slotKind int

const (
	slotNone slotKind = iota
	slotThrottle
	slotBackoff
)

func (k slotKind) String() string {
	switch k {
	case slotThrottle:
		return "throttle"
	case slotBackoff:
		return "backoff"
	}
	return "none"
}

// actionSlot is the single pending connect attempt. Arming replaces
// whatever was pending; a fired callback whose seq no longer matches is stale.
type actionSlot struct {
	kind  slotKind
	seq   uint64
	at    time.Time
	timer clock.Timer
}

func (s *actionSlot) pending() bool { return s.kind != slotNone }

func (s *actionSlot) arm(c clock.Clock, kind slotKind, d time.Duration, fire func(seq uint64)) {
	s.cancel()
	s.seq++
	seq := s.seq
	s.kind = kind
	s.at = c.Now().Add(d)
	s.timer = c.AfterFunc(d, func() { fire(seq) })
}

// take clears the slot if seq is still current.
func (s *actionSlot) take(seq uint64) (slotKind, bool) {
	if s.kind == slotNone || s.seq != seq {
		return slotNone, false
	}
	k := s.kind
	s.kind, s.timer, s.at = slotNone, nil, time.Time{}
	return k, true
}

func (s *actionSlot) cancel() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.kind, s.timer, s.at = slotNone, nil, time.Time{}
}
