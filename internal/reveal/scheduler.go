// internal/reveal/scheduler.go
// Package reveal paces the display of streamed text: one character becomes
// visible per tick, independent of how fast the text arrives.
package reveal

import (
	"sync"
	"time"
)

// Source is the growing text being revealed.
type Source interface {
	// Len returns the current length in runes.
	Len() int
	// Prefix returns the first n runes.
	Prefix(n int) string
	// Done reports whether the text will not grow any further.
	Done() bool
}

type emptySource struct{}

func (emptySource) Len() int          { return 0 }
func (emptySource) Prefix(int) string { return "" }
func (emptySource) Done() bool        { return true }

// Scheduler owns the visible length of one Source at a time.
type Scheduler struct {
	delay    time.Duration
	onChange func(visible int)

	mu      sync.Mutex
	src     Source
	visible int

	wake     chan struct{}
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New starts a scheduler for src that reveals one rune every delay. onChange,
// if set, is called with the new visible length after every change. Calls are
// not ordered across a Retarget, so observers should read Visible or Text
// rather than trust the argument. onChange must not call Stop.
func New(src Source, delay time.Duration, onChange func(visible int)) *Scheduler {
	if src == nil {
		src = emptySource{}
	}
	if delay <= 0 {
		delay = time.Millisecond
	}
	s := &Scheduler{
		delay:    delay,
		onChange: onChange,
		src:      src,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	s.Notify()
	return s
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
		}
		if !s.run() {
			return
		}
	}
}

// run ticks until the source is fully visible. It returns false when the
// scheduler was stopped.
func (s *Scheduler) run() bool {
	ticker := time.NewTicker(s.delay)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return false
		case <-ticker.C:
			if !s.Tick() {
				return true
			}
		}
	}
}

// Tick advances the visible length by one rune, or clamps it when the source
// is shorter than what is visible. It reports whether more text remains.
func (s *Scheduler) Tick() bool {
	s.mu.Lock()
	if s.stopped() {
		s.mu.Unlock()
		return false
	}
	n := s.src.Len()
	changed := true
	switch {
	case s.visible > n:
		s.visible = n
	case s.visible < n:
		s.visible++
	default:
		changed = false
	}
	visible := s.visible
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(visible)
	}
	return visible < n
}

// Notify tells the scheduler the source may have grown. It resumes ticking if
// the loop is idle and is safe to call any number of times.
func (s *Scheduler) Notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Retarget switches to src. The visible length is clamped to src.Len()
// before Retarget returns.
func (s *Scheduler) Retarget(src Source) {
	if src == nil {
		src = emptySource{}
	}
	s.mu.Lock()
	if s.stopped() {
		s.mu.Unlock()
		return
	}
	s.src = src
	changed := false
	if n := src.Len(); s.visible > n {
		s.visible = n
		changed = true
	}
	visible := s.visible
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(visible)
	}
	s.Notify()
}

// Stop halts the tick loop and waits for it to exit. The scheduler is inert
// afterwards.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	s.wg.Wait()
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// Visible returns the number of revealed runes.
func (s *Scheduler) Visible() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Text returns the revealed prefix of the current source.
func (s *Scheduler) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Prefix(s.visible)
}

// Revealing reports whether text is still being revealed or may still arrive.
func (s *Scheduler) Revealing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible < s.src.Len() || !s.src.Done()
}
