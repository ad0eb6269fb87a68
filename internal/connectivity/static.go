package connectivity

import (
	"context"
	"sync"
)

// Static is a Source whose class only changes through Set. It backs the
// connectivity.force_class setting and tests.
type Static struct {
	mu      sync.Mutex
	current Class
	updates chan Class
}

// NewStatic returns a source fixed at class.
func NewStatic(class Class) *Static {
	return &Static{current: class, updates: make(chan Class, 8)}
}

// Current returns the configured class.
func (s *Static) Current() Class {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set changes the class and notifies a running Run loop.
func (s *Static) Set(class Class) {
	s.mu.Lock()
	s.current = class
	s.mu.Unlock()
	s.updates <- class
}

// Run emits the initial class, then every Set, until ctx is done.
func (s *Static) Run(ctx context.Context, changes chan<- Class) error {
	select {
	case changes <- s.Current():
	case <-ctx.Done():
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case class := <-s.updates:
			select {
			case changes <- class:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
