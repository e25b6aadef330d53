// ABOUTME: Resource owner for one call
// ABOUTME: Releases acquired resources exactly once in reverse order
package voicelink

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

type resource struct {
	name    string
	release func() error
}

// lifetime collects the resources of one call. Anything acquired after
// release is released immediately.
type lifetime struct {
	mu        sync.Mutex
	resources []resource
	released  bool
	log       *logrus.Entry
}

func newLifetime(log *logrus.Entry) *lifetime {
	return &lifetime{log: log}
}

// acquire registers a resource. It returns false if the lifetime has
// already ended, in which case the resource has been released.
func (l *lifetime) acquire(name string, release func() error) bool {
	l.mu.Lock()
	if !l.released {
		l.resources = append(l.resources, resource{name: name, release: release})
		l.mu.Unlock()
		return true
	}
	l.mu.Unlock()

	if err := release(); err != nil {
		l.log.Debugf("Failed to release late %s: %v", name, err)
	}
	return false
}

// release frees every resource, newest first. Later calls do nothing.
func (l *lifetime) release() error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	resources := l.resources
	l.resources = nil
	l.mu.Unlock()

	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		r := resources[i]
		if err := r.release(); err != nil {
			l.log.Warnf("Failed to release %s: %v", r.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
		}
	}
	return errors.Join(errs...)
}

func (l *lifetime) done() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}
