package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a market module is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when the module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a static PauseView built from configuration.
type PauseSet map[string]bool

// IsPaused implements PauseView.
func (p PauseSet) IsPaused(module string) bool {
	return p[module]
}
