package store

import "sync"

// Overlay is the stack of modal overlays; the last opened is on top
type Overlay struct {
	mu        sync.Mutex
	stack     []string
	observers []func(top string)
}

// NewOverlay creates an empty overlay stack
func NewOverlay() *Overlay {
	return &Overlay{}
}

// Open pushes name, moving it to the top if it is already open
func (o *Overlay) Open(name string) {
	o.mu.Lock()
	o.stack = remove(o.stack, name)
	o.stack = append(o.stack, name)
	top, observers := o.top(), o.observers
	o.mu.Unlock()

	o.fire(observers, top)
}

// Close removes name wherever it is in the stack
func (o *Overlay) Close(name string) bool {
	o.mu.Lock()
	before := len(o.stack)
	o.stack = remove(o.stack, name)
	closed := len(o.stack) != before
	top, observers := o.top(), o.observers
	o.mu.Unlock()

	if closed {
		o.fire(observers, top)
	}
	return closed
}

// CloseTop pops the top overlay and returns its name
func (o *Overlay) CloseTop() (string, bool) {
	o.mu.Lock()
	if len(o.stack) == 0 {
		o.mu.Unlock()
		return "", false
	}
	name := o.stack[len(o.stack)-1]
	o.stack = o.stack[:len(o.stack)-1]
	top, observers := o.top(), o.observers
	o.mu.Unlock()

	o.fire(observers, top)
	return name, true
}

// CloseAll empties the stack
func (o *Overlay) CloseAll() {
	o.mu.Lock()
	had := len(o.stack) > 0
	o.stack = nil
	observers := o.observers
	o.mu.Unlock()

	if had {
		o.fire(observers, "")
	}
}

// Top returns the overlay on top
func (o *Overlay) Top() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	top := o.top()
	return top, top != ""
}

// IsOpen reports whether name is anywhere in the stack
func (o *Overlay) IsOpen(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, n := range o.stack {
		if n == name {
			return true
		}
	}
	return false
}

// OnChange registers fn to be called with the new top ("" when empty)
func (o *Overlay) OnChange(fn func(top string)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers[:len(o.observers):len(o.observers)], fn)
}

func (o *Overlay) top() string {
	if len(o.stack) == 0 {
		return ""
	}
	return o.stack[len(o.stack)-1]
}

func (o *Overlay) fire(observers []func(string), top string) {
	for _, fn := range observers {
		fn(top)
	}
}

func remove(stack []string, name string) []string {
	out := stack[:0]
	for _, n := range stack {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
