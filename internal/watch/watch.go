// Package watch provides primitives to enable shared state with live updates
// among multiple parties.
package watch

import "sync"

// Value provides synchronized reads and writes of a value of type T, and
// enables watchers to be notified of updates as they are made.
//
// The zero value of a Value is valid and holds the zero value of T.
type Value[T any] struct {
	valueMu sync.RWMutex
	value   T

	watchersMu sync.Mutex
	watchers   map[*watch[T]]struct{}
}

// NewValue creates a Value whose value is initially set to x.
func NewValue[T any](x T) *Value[T] {
	return &Value[T]{value: x}
}

// Get returns the current value of v.
func (v *Value[T]) Get() T {
	v.valueMu.RLock()
	defer v.valueMu.RUnlock()

	return v.value
}

// Set sets the value of v to x.
func (v *Value[T]) Set(x T) {
	v.valueMu.Lock()
	defer v.valueMu.Unlock()

	v.value = x

	v.watchersMu.Lock()
	defer v.watchersMu.Unlock()

	for w := range v.watchers {
		w.update(x)
	}
}

// Watch creates a new watch on the value of v.
//
// Each active watch executes up to one instance of handle at a time in a new
// goroutine, first with the value of v at the time the watch was created, then
// with subsequent values of v as it is updated. If updates are made to v while
// an execution is in flight, handle will be called once more with the latest
// value of v following its current execution. Intermediate updates preceding
// the latest value will be dropped.
func (v *Value[T]) Watch(handle func(x T)) Watch {
	w := &watch[T]{
		value:   v,
		handler: handle,
		next:    make(chan T, 1),
		done:    make(chan struct{}),
	}

	v.initializeAndRegisterWatch(w)
	go w.run()

	return w
}

func (v *Value[T]) initializeAndRegisterWatch(w *watch[T]) {
	v.valueMu.RLock()
	defer v.valueMu.RUnlock()

	w.update(v.value)

	v.watchersMu.Lock()
	defer v.watchersMu.Unlock()

	if v.watchers == nil {
		v.watchers = make(map[*watch[T]]struct{})
	}
	v.watchers[w] = struct{}{}
}

// unregisterWatch reports whether w was still registered.
func (v *Value[T]) unregisterWatch(w *watch[T]) bool {
	v.watchersMu.Lock()
	defer v.watchersMu.Unlock()

	_, ok := v.watchers[w]
	delete(v.watchers, w)
	return ok
}

// Watch represents a single watch on a Value. See Value.Watch for details.
type Watch interface {
	// Cancel requests that this watch be terminated as soon as possible,
	// potentially after a pending or in-flight handler execution has finished.
	// Calling Cancel more than once has no further effect.
	Cancel()

	// Wait blocks until this watch has terminated following a call to Cancel.
	// After Wait returns, it is guaranteed that no new handler execution will
	// start.
	Wait()
}

type watch[T any] struct {
	value   *Value[T]
	handler func(T)
	next    chan T        // Buffered with size 1
	done    chan struct{} // Unbuffered
}

func (w *watch[T]) run() {
	defer close(w.done)
	for next := range w.next {
		w.dispatch(next)
	}
}

// dispatch runs the handler in a new goroutine, insulating it from the main
// loop. If the main loop ran the handler directly and it called runtime.Goexit,
// the watch would unexpectedly stop processing new values.
func (w *watch[T]) dispatch(x T) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.handler(x)
	}()
	wg.Wait()
}

// update must be called with the value's watchersMu held or before the watch
// is registered, which serializes it against Cancel.
func (w *watch[T]) update(x T) {
	select {
	// If there is a pending value and the run loop has not picked it up, replace
	// it with the latest value.
	case <-w.next:
		w.next <- x

	// Otherwise, simply provide the next value to trigger a call to the handler.
	case w.next <- x:
	}
}

func (w *watch[T]) Cancel() {
	if !w.value.unregisterWatch(w) {
		return
	}
	w.clearNext()
	close(w.next)
}

func (w *watch[T]) clearNext() {
	select {
	case <-w.next:
	default:
	}
}

func (w *watch[T]) Wait() {
	<-w.done
}
