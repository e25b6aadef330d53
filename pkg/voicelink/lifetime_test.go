// ABOUTME: Tests for the per-call resource owner
// ABOUTME: Tests release order, idempotence and late acquisition
package voicelink

import (
	"errors"
	"testing"
)

func TestLifetimeReleasesInReverseOrder(t *testing.T) {
	life := newLifetime(quietLogger())

	var order []string
	for _, name := range []string{"input", "engine", "transport"} {
		life.acquire(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	if err := life.release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	expected := []string{"transport", "engine", "input"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d releases, got %d", len(expected), len(order))
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("release %d: expected %s, got %s", i, want, order[i])
		}
	}

	// Second release does nothing
	life.release()
	if len(order) != len(expected) {
		t.Errorf("expected no further releases, got %v", order)
	}
}

func TestLifetimeLateAcquire(t *testing.T) {
	life := newLifetime(quietLogger())
	life.release()

	released := false
	ok := life.acquire("late", func() error {
		released = true
		return nil
	})

	if ok {
		t.Error("expected acquire to fail after release")
	}
	if !released {
		t.Error("expected late resource to be released immediately")
	}
	if !life.done() {
		t.Error("expected lifetime to be done")
	}
}

func TestLifetimeJoinsErrors(t *testing.T) {
	life := newLifetime(quietLogger())
	errEngine := errors.New("engine stuck")

	life.acquire("input", func() error { return nil })
	life.acquire("engine", func() error { return errEngine })

	err := life.release()
	if !errors.Is(err, errEngine) {
		t.Errorf("expected engine error, got %v", err)
	}
}
