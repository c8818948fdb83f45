package common

// Lock is a non-blocking re-entrancy latch. A second Enter before Exit fails
// instead of waiting, which is what a nested callback into the same operation
// must observe.
type Lock struct {
	held bool
}

// Enter acquires the latch and reports whether it was free.
func (l *Lock) Enter() bool {
	if l.held {
		return false
	}
	l.held = true
	return true
}

// Exit releases the latch.
func (l *Lock) Exit() {
	l.held = false
}

// Held reports whether the latch is currently taken.
func (l *Lock) Held() bool {
	return l.held
}
