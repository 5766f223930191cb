// internal/tui/relay.go
package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// sender is the part of *tea.Program the relay delivers to.
type sender interface {
	Send(msg tea.Msg)
}

// relay queues messages posted from stream and reveal goroutines and delivers
// them to the program in order. Post never blocks, so a slow frame cannot stall
// a router callback. Consecutive reveal messages are coalesced.
type relay struct {
	mu    sync.Mutex
	queue []tea.Msg

	wake     chan struct{}
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newRelay() *relay {
	return &relay{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
}

// Post enqueues msg for delivery.
func (r *relay) Post(msg tea.Msg) {
	r.mu.Lock()
	if _, ok := msg.(revealMsg); ok && len(r.queue) > 0 {
		if _, last := r.queue[len(r.queue)-1].(revealMsg); last {
			r.mu.Unlock()
			return
		}
	}
	r.queue = append(r.queue, msg)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest queued message.
func (r *relay) next() (tea.Msg, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, false
	}
	msg := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return msg, true
}

// Start delivers queued messages to s until Stop is called.
func (r *relay) Start(s sender) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.quit:
				return
			case <-r.wake:
			}
			for {
				select {
				case <-r.quit:
					return
				default:
				}
				msg, ok := r.next()
				if !ok {
					break
				}
				s.Send(msg)
			}
		}
	}()
}

// Stop halts delivery and waits for the delivery goroutine. Messages still
// queued are dropped. s.Send must be able to return for Stop to return.
func (r *relay) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	r.wg.Wait()
}
