package orchestrator

import (
	"sync"
	"time"
)

// Loop is the single control goroutine that owns all Connection state.
// Every mutation of a Connection happens inside a task posted here; worker
// goroutines doing blocking I/O marshal their results back with Post.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

func NewLoop() *Loop {
	l := &Loop{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.done:
			return
		}
	}
}

// Post queues fn for execution on the loop. It is safe from any goroutine
// and becomes a no-op after Stop.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

// PostAfter schedules fn onto the loop after the delay elapses. Used by the
// shell host's surface-readiness retry.
func (l *Loop) PostAfter(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { l.Post(fn) })
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(fn func()) {
	doneCh := make(chan struct{})
	l.Post(func() {
		defer close(doneCh)
		fn()
	})
	select {
	case <-doneCh:
	case <-l.done:
	}
}

func (l *Loop) Stop() {
	l.once.Do(func() { close(l.done) })
}
