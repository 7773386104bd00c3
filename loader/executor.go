package loader

import "sync"

// Executor is the context result callbacks run on.
type Executor interface {
	Execute(f func())
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(f func())

func (e ExecutorFunc) Execute(f func()) { e(f) }

// InlineExecutor runs callbacks immediately on whatever goroutine
// delivers them (the loader's worker).
type InlineExecutor struct{}

func (InlineExecutor) Execute(f func()) { f() }

// SerialExecutor runs callbacks one at a time, in the order they were
// submitted, on a single goroutine it owns. It plays the part of a UI
// thread. The queue is unbounded so a callback may submit more work
// without deadlocking.
type SerialExecutor struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *SerialExecutor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		if len(e.pending) == 0 {
			closed := e.closed
			e.mu.Unlock()
			if closed {
				return
			}
			<-e.wake
			continue
		}
		f := e.pending[0]
		e.pending[0] = nil
		e.pending = e.pending[1:]
		e.mu.Unlock()
		f()
	}
}

// Execute queues f. Work submitted after Close is dropped.
func (e *SerialExecutor) Execute(f func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.pending = append(e.pending, f)
	e.mu.Unlock()
	e.signal()
}

func (e *SerialExecutor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Close runs everything already queued and then stops the goroutine.
// It must not be called from inside a callback.
func (e *SerialExecutor) Close() {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.signal()
	})
	<-e.done
}
