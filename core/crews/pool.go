package crews

import (
	"errors"
	"fmt"

	"github.com/crisisworks/lifeline/core/logger"
	"github.com/crisisworks/lifeline/core/model"
)

// ErrNoCrews is returned when a crew is requested for an infrastructure type
// with no deployed crews. This is a usage error and fatal to the run.
var ErrNoCrews = errors.New("crews: no crews deployed")

// ErrUnknownCrew is returned when an operation references a crew the pool
// does not own.
var ErrUnknownCrew = errors.New("crews: unknown crew")

// Crew is one repair crew. Crews are created once per run and never
// destroyed; the scheduler owns them exclusively.
type Crew struct {
	ID       int
	Infra    model.InfraType
	Location string
	// NextAvailable is the earliest time in seconds at which the crew can
	// start its next trip. It never decreases.
	NextAvailable int64
	// TravelMinutes accumulates travel time over the run.
	TravelMinutes float64

	initialLocation string
}

// Pool tracks repair crews per infrastructure type. A single scheduling
// thread owns the pool; there is no locking.
type Pool struct {
	crews map[model.InfraType][]*Crew
	log   logger.Logger
}

// NewPool creates an empty crew pool.
func NewPool(log logger.Logger) *Pool {
	return &Pool{crews: make(map[model.InfraType][]*Crew), log: log}
}

// Deploy creates one crew per initial location. Crew IDs are assigned in
// insertion order, which also decides idle-crew ties.
func (p *Pool) Deploy(infra model.InfraType, initialLocations []string) []*Crew {
	deployed := make([]*Crew, 0, len(initialLocations))
	for _, loc := range initialLocations {
		c := &Crew{
			ID:              len(p.crews[infra]) + 1,
			Infra:           infra,
			Location:        loc,
			initialLocation: loc,
		}
		p.crews[infra] = append(p.crews[infra], c)
		deployed = append(deployed, c)
	}
	p.log.Infof("deployed %d %s crews", len(deployed), infra)
	return deployed
}

// Idle returns the crew with the smallest NextAvailable. Ties are broken by
// insertion order, deterministically.
func (p *Pool) Idle(infra model.InfraType) (*Crew, error) {
	cs := p.crews[infra]
	if len(cs) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoCrews, infra)
	}
	idle := cs[0]
	for _, c := range cs[1:] {
		if c.NextAvailable < idle.NextAvailable {
			idle = c
		}
	}
	return idle, nil
}

// Advance commits a trip: the crew moves to newLocation, becomes available
// at newAvailable and accumulates the travel time. NextAvailable is
// monotonically non-decreasing.
func (p *Pool) Advance(crew *Crew, newLocation string, newAvailable int64, travelMinutes float64) error {
	if !p.owns(crew) {
		return fmt.Errorf("%w: %s #%d", ErrUnknownCrew, crew.Infra, crew.ID)
	}
	if newAvailable < crew.NextAvailable {
		return fmt.Errorf("crews: %s #%d availability would move backwards (%d < %d)",
			crew.Infra, crew.ID, newAvailable, crew.NextAvailable)
	}
	crew.Location = newLocation
	crew.NextAvailable = newAvailable
	crew.TravelMinutes += travelMinutes
	return nil
}

// SetTripStart initializes the availability of every crew of the given type.
// Called once per run with the first disruption time of that infrastructure.
func (p *Pool) SetTripStart(infra model.InfraType, t int64) {
	for _, c := range p.crews[infra] {
		c.NextAvailable = t
	}
}

// ResetLocations returns every crew to its initial location at run end.
func (p *Pool) ResetLocations() {
	for _, cs := range p.crews {
		for _, c := range cs {
			c.Location = c.initialLocation
		}
	}
}

// Crews returns the crews deployed for the given infrastructure type.
func (p *Pool) Crews(infra model.InfraType) []*Crew { return p.crews[infra] }

// TravelMinutes sums the accumulated travel time per infrastructure type.
func (p *Pool) TravelMinutes() map[model.InfraType]float64 {
	out := make(map[model.InfraType]float64, len(p.crews))
	for infra, cs := range p.crews {
		for _, c := range cs {
			out[infra] += c.TravelMinutes
		}
	}
	return out
}

func (p *Pool) owns(crew *Crew) bool {
	for _, c := range p.crews[crew.Infra] {
		if c == crew {
			return true
		}
	}
	return false
}
