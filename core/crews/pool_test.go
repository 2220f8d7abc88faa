package crews

import (
	"errors"
	"testing"

	"github.com/crisisworks/lifeline/core/model"
	"github.com/crisisworks/lifeline/infra/logger"
)

func TestIdleSelection(t *testing.T) {
	p := NewPool(logger.NopLogger{})
	p.Deploy(model.Water, []string{"T_J1", "T_J2"})
	p.SetTripStart(model.Water, 600)

	// Equal availability: insertion order breaks the tie.
	c, err := p.Idle(model.Water)
	if err != nil {
		t.Fatalf("idle: %v", err)
	}
	if c.ID != 1 {
		t.Fatalf("expected crew 1, got %d", c.ID)
	}

	if err := p.Advance(c, "T_J5", 5000, 12); err != nil {
		t.Fatalf("advance: %v", err)
	}
	c2, err := p.Idle(model.Water)
	if err != nil {
		t.Fatalf("idle: %v", err)
	}
	if c2.ID != 2 {
		t.Fatalf("expected crew 2, got %d", c2.ID)
	}
}

func TestAdvanceMonotonic(t *testing.T) {
	p := NewPool(logger.NopLogger{})
	crew := p.Deploy(model.Power, []string{"T_J1"})[0]
	if err := p.Advance(crew, "T_J2", 1000, 5); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := p.Advance(crew, "T_J3", 500, 5); err == nil {
		t.Fatalf("expected monotonicity violation")
	}
	if crew.TravelMinutes != 5 {
		t.Fatalf("travel minutes %v", crew.TravelMinutes)
	}
}

func TestNoCrews(t *testing.T) {
	p := NewPool(logger.NopLogger{})
	if _, err := p.Idle(model.Transpo); !errors.Is(err, ErrNoCrews) {
		t.Fatalf("expected ErrNoCrews, got %v", err)
	}
}

func TestResetLocations(t *testing.T) {
	p := NewPool(logger.NopLogger{})
	crew := p.Deploy(model.Water, []string{"T_J1"})[0]
	if err := p.Advance(crew, "T_J9", 100, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	p.ResetLocations()
	if crew.Location != "T_J1" {
		t.Fatalf("location not reset: %s", crew.Location)
	}
}
