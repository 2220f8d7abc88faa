package recovery

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/crisisworks/lifeline/core/access"
	"github.com/crisisworks/lifeline/core/crews"
	"github.com/crisisworks/lifeline/core/eventtable"
	"github.com/crisisworks/lifeline/core/logger"
	"github.com/crisisworks/lifeline/core/model"
	"github.com/crisisworks/lifeline/core/registry"
	"github.com/crisisworks/lifeline/core/transpo"
	"github.com/crisisworks/lifeline/internal/eventbus"
)

// ErrSchedulingDeadlock is returned when a full scan of the pending set
// dispatches nothing and no deferred candidate has a usable departure time.
// The run is aborted rather than scanning forever.
var ErrSchedulingDeadlock = errors.New("recovery: scheduling deadlock")

// Request carries the inputs of one scheduling run.
type Request struct {
	// Disruptions is the externally supplied disruption list.
	Disruptions []model.Disruption
	// RepairOrder is the sequence in which disrupted components should be
	// addressed. It may cover a subset of the disruptions; components left
	// out are seeded but never repaired.
	RepairOrder []string
	// CrewLocations holds the initial crew locations (transportation nodes)
	// per infrastructure type; crew count equals list length.
	CrewLocations map[model.InfraType][]string
}

// Result is the finished schedule handed to the physics simulators.
type Result struct {
	RunID   string
	Events  []model.EventRecord
	Summary []model.SummaryRow
	Stats   map[model.InfraType]model.InfraStats
	// NoRedundancy lists components that at some point had no accessible
	// repair route, for diagnostic reporting.
	NoRedundancy []string
	// Unscheduled lists disrupted components missing from the repair order.
	Unscheduled []string
}

// Scheduler orchestrates repair-order traversal, accessibility checks, crew
// assignment and transportation-link feedback. One Scheduler can run many
// scenarios; all per-run state (registry, crews, cost snapshots, event
// table) is created inside ScheduleRecovery and discarded with it.
//
// The run is single threaded and fully deterministic: travel and repair
// times are arithmetic on timestamps, never real waits.
type Scheduler struct {
	cfg     Config
	catalog model.Catalog
	net     *transpo.Network
	access  *access.Index
	bus     eventbus.EventBus
	log     logger.Logger
}

// New creates a Scheduler. The bus may be nil; catalog defaults to the
// built-in component catalog.
func New(cfg Config, catalog model.Catalog, net *transpo.Network, ix *access.Index, bus eventbus.EventBus, log logger.Logger) (*Scheduler, error) {
	if net == nil || ix == nil || log == nil {
		return nil, fmt.Errorf("recovery: nil parameter provided to New")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = model.DefaultCatalog()
	}
	return &Scheduler{cfg: cfg, catalog: catalog, net: net, access: ix, bus: bus, log: log}, nil
}

// run is the state of one scheduling run.
type run struct {
	id     string
	reg    *registry.Registry
	pool   *crews.Pool
	cost   *transpo.CostModel
	events *eventtable.Builder
	// repairTimes records the completion time of every repaired
	// transportation link, consulted by later accessibility checks.
	repairTimes map[string]int64
	// failedLinks is the static set of transportation links named in the
	// disruption list.
	failedLinks  map[string]bool
	noRedundancy map[string]bool
	recovery     map[model.InfraType]int64
	repaired     map[model.InfraType]int
}

// jobPlan is one ephemeral scheduling attempt: either committed by dispatch
// or discarded and retried in a later scan.
type jobPlan struct {
	comp  *model.Component
	crew  *crews.Crew
	node  string
	route transpo.Route
	// departure is the earliest possible trip start: the crew's
	// availability, pushed past the completion of any already-repaired
	// blocker on the route.
	departure int64
	// unrepaired holds blockers with no known repair time; the candidate
	// cannot be assessed until they are scheduled.
	unrepaired []string
	forced     bool
}

// ScheduleRecovery computes the complete restoration schedule for one
// disruption scenario and repair order.
func (s *Scheduler) ScheduleRecovery(req Request) (*Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	r := &run{
		id:           uuid.NewString(),
		reg:          registry.New(s.catalog),
		pool:         crews.NewPool(s.log),
		cost:         transpo.NewCostModel(s.net, s.log),
		events:       eventtable.New(s.cfg.eventTableConfig()),
		repairTimes:  make(map[string]int64),
		failedLinks:  make(map[string]bool),
		noRedundancy: make(map[string]bool),
		recovery:     make(map[model.InfraType]int64),
		repaired:     make(map[model.InfraType]int),
	}
	s.log.Infof("run %s: scheduling %d repairs over %d disruptions", r.id, len(req.RepairOrder), len(req.Disruptions))

	// Seed: every disrupted component gets its Functional and Disrupted
	// rows; failed transportation links are priced out immediately.
	for _, d := range req.Disruptions {
		c, err := r.reg.Register(d)
		if err != nil {
			return nil, err
		}
		r.events.RecordDisruption(c)
		if c.Infra == model.Transpo && c.Spec.Class == model.ClassLink {
			if err := r.cost.FailLink(c.ID, d.Time); err != nil {
				return nil, err
			}
			r.failedLinks[c.ID] = true
		}
	}

	for _, infra := range model.Infras {
		if locs := req.CrewLocations[infra]; len(locs) > 0 {
			r.pool.Deploy(infra, locs)
		}
	}
	for _, infra := range model.Infras {
		if t, ok := firstDisruption(r, req.RepairOrder, infra); ok {
			r.pool.SetTripStart(infra, t)
		}
	}

	// Transportation first: link repairs feed the cost model that every
	// later dispatch depends on.
	var transpoIDs, others []string
	for _, id := range req.RepairOrder {
		c, err := r.reg.Component(id)
		if err != nil {
			return nil, err
		}
		if c.Infra == model.Transpo {
			transpoIDs = append(transpoIDs, id)
		} else {
			others = append(others, id)
		}
	}
	if err := s.runPass(r, transpoIDs); err != nil {
		return nil, err
	}
	if err := s.runPass(r, others); err != nil {
		return nil, err
	}

	events, summary := r.events.Finalize()
	travel := r.pool.TravelMinutes()
	r.pool.ResetLocations()
	costSnapshots.Set(float64(r.cost.SnapshotCount()))

	stats := make(map[model.InfraType]model.InfraStats, len(model.Infras))
	for _, infra := range model.Infras {
		stats[infra] = model.InfraStats{
			TravelMinutes:   travel[infra],
			RecoverySeconds: r.recovery[infra],
			Repaired:        r.repaired[infra],
		}
	}

	res := &Result{
		RunID:        r.id,
		Events:       events,
		Summary:      summary,
		Stats:        stats,
		NoRedundancy: sortedKeys(r.noRedundancy),
	}
	scheduledSet := make(map[string]bool, len(req.RepairOrder))
	for _, id := range req.RepairOrder {
		scheduledSet[id] = true
	}
	for _, d := range req.Disruptions {
		if !scheduledSet[d.Component] {
			res.Unscheduled = append(res.Unscheduled, d.Component)
		}
	}
	if len(res.Unscheduled) > 0 {
		s.log.Warnf("run %s: %d disrupted components are not in the repair order", r.id, len(res.Unscheduled))
	}
	s.log.Infof("run %s: scheduled %d repairs, %d event records", r.id, len(req.RepairOrder), len(events))
	return res, nil
}

// runPass repeatedly scans the pending set, dispatching every candidate
// that is accessible with the crew and cost snapshots of the moment, and
// deferring the rest. A scan that dispatches nothing commits the deferred
// candidate with the earliest known departure; if there is none the
// transportation network is gridlocked and the run aborts.
func (s *Scheduler) runPass(r *run, pending []string) error {
	for len(pending) > 0 {
		progressed := false
		var forced *jobPlan
		dispatched := make(map[string]bool)
		remaining := len(pending)

		for _, id := range pending {
			comp, err := r.reg.Component(id)
			if err != nil {
				return err
			}
			crew, err := r.pool.Idle(comp.Infra)
			if err != nil {
				return err
			}
			p, err := s.plan(r, comp, crew, crew.NextAvailable)
			if err != nil {
				if errors.Is(err, transpo.ErrNoRoute) {
					s.deferDispatch(r, comp, crew, nil, "no accessible route")
					continue
				}
				return err
			}
			if len(p.unrepaired) > 0 {
				s.deferDispatch(r, comp, crew, p.unrepaired, "blocked by unrepaired links")
				continue
			}
			if p.departure <= crew.NextAvailable || remaining == 1 {
				if err := s.dispatch(r, p); err != nil {
					return err
				}
				dispatched[id] = true
				remaining--
				progressed = true
				continue
			}
			// Every blocker is repaired but the crew would idle until the
			// last completion; prefer another candidate this scan and keep
			// the cheapest departure as a fallback.
			if forced == nil || p.departure < forced.departure {
				forced = p
			}
			dispatchDeferrals.WithLabelValues(string(comp.Infra)).Inc()
		}

		if !progressed {
			if forced == nil {
				schedulingDeadlocks.Inc()
				return fmt.Errorf("%w: run %s has %d pending components and no dispatchable candidate (no redundancy: %v)",
					ErrSchedulingDeadlock, r.id, remaining, sortedKeys(r.noRedundancy))
			}
			forced.forced = true
			if err := s.dispatch(r, forced); err != nil {
				return err
			}
			dispatched[forced.comp.ID] = true
		}

		next := make([]string, 0, len(pending))
		for _, id := range pending {
			if !dispatched[id] {
				next = append(next, id)
			}
		}
		pending = next
	}
	return nil
}

// plan computes the best access node and route for one candidate using the
// cost snapshot active at asOf, and classifies the disrupted transportation
// links found on that route.
func (s *Scheduler) plan(r *run, comp *model.Component, crew *crews.Crew, asOf int64) (*jobPlan, error) {
	candidates, err := s.accessNodes(comp)
	if err != nil {
		return nil, err
	}
	var best *jobPlan
	for _, cand := range candidates {
		route, err := r.cost.ShortestTravelTime(crew.Location, cand, asOf)
		if err != nil {
			if errors.Is(err, transpo.ErrNoRoute) {
				continue
			}
			return nil, err
		}
		if best == nil || route.Minutes < best.route.Minutes {
			best = &jobPlan{comp: comp, crew: crew, node: cand, route: route}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: every access node of %s is unreachable", transpo.ErrNoRoute, comp.ID)
	}
	best.departure = asOf
	for _, link := range best.route.Links {
		if link == comp.ID || !r.failedLinks[link] {
			continue
		}
		completion, ok := r.repairTimes[link]
		switch {
		case !ok:
			best.unrepaired = append(best.unrepaired, link)
		case completion > asOf:
			if completion > best.departure {
				best.departure = completion
			}
		}
		// A completion at or before asOf is already priced into the
		// snapshot and no longer blocks.
	}
	return best, nil
}

// dispatch commits a plan: it fixes the repair window, updates the cost
// model for transportation links, advances the crew and emits the events.
func (s *Scheduler) dispatch(r *run, p *jobPlan) error {
	comp, crew := p.comp, p.crew
	route, node := p.route, p.node
	if p.departure > crew.NextAvailable {
		// The trip starts only after the blocking repairs complete, so
		// price it on the snapshot active at departure.
		if np, err := s.plan(r, comp, crew, p.departure); err == nil {
			route, node = np.route, np.node
			if len(np.unrepaired) > 0 {
				s.log.Warnf("run %s: %s dispatched through still-unrepaired links %v", r.id, comp.ID, np.unrepaired)
			}
		}
	}

	travelMinutes := *s.cfg.PrepMinutes + math.Round(route.Minutes)
	recoveryStart := p.departure + int64(travelMinutes*60)
	if minStart := r.events.Quantize(comp.DisruptionTime) + 2*s.cfg.SimStep; recoveryStart < minStart {
		s.log.Warnf("run %s: %s repair would start before its disruption, clamped to %d", r.id, comp.ID, minStart)
		recoveryStart = minStart
	}
	duration := comp.RecoveryDuration()
	recoveryEnd := recoveryStart + duration

	if err := r.reg.SetState(comp.ID, model.StateRepairing); err != nil {
		return err
	}
	if comp.Infra == model.Transpo && r.failedLinks[comp.ID] {
		if err := r.cost.RepairLink(comp.ID, recoveryEnd); err != nil {
			return err
		}
		r.repairTimes[comp.ID] = recoveryEnd
		s.publish(LinkRepairEvent{RunID: r.id, Link: comp.ID, Completion: recoveryEnd})
	}
	if err := r.pool.Advance(crew, node, recoveryEnd, travelMinutes); err != nil {
		return err
	}
	r.events.RecordRepair(comp, recoveryStart, recoveryEnd)
	if err := r.reg.SetState(comp.ID, model.StateRestored); err != nil {
		return err
	}

	r.recovery[comp.Infra] += duration
	r.repaired[comp.Infra]++
	componentsRestored.WithLabelValues(string(comp.Infra)).Inc()
	crewTravelMinutes.WithLabelValues(string(comp.Infra)).Add(travelMinutes)
	recoveryDuration.WithLabelValues(string(comp.Infra)).Observe(float64(duration))

	s.publish(DispatchEvent{
		RunID:         r.id,
		Component:     comp.ID,
		Infra:         comp.Infra,
		CrewID:        crew.ID,
		AccessNode:    node,
		TravelMinutes: travelMinutes,
		RecoveryStart: recoveryStart,
		RecoveryEnd:   recoveryEnd,
		Forced:        p.forced,
	})
	s.log.Debugw("repair dispatched", map[string]any{
		"run":            r.id,
		"component":      comp.ID,
		"crew":           crew.ID,
		"access_node":    node,
		"travel_minutes": travelMinutes,
		"recovery_start": recoveryStart,
		"recovery_end":   recoveryEnd,
	})
	return nil
}

// accessNodes returns the candidate transportation nodes for a component.
// Transportation components are incident to the graph itself; power and
// water components go through the access index.
func (s *Scheduler) accessNodes(comp *model.Component) ([]string, error) {
	if comp.Infra != model.Transpo {
		return s.access.NearestTransportNodes(comp.ID)
	}
	if comp.Spec.Class == model.ClassLink {
		l, err := s.net.Link(comp.ID)
		if err != nil {
			return nil, err
		}
		return []string{l.From, l.To}, nil
	}
	if !s.net.HasNode(comp.ID) {
		return nil, fmt.Errorf("%w: %s", transpo.ErrUnknownNode, comp.ID)
	}
	return []string{comp.ID}, nil
}

func (s *Scheduler) deferDispatch(r *run, comp *model.Component, crew *crews.Crew, blockers []string, reason string) {
	r.noRedundancy[comp.ID] = true
	dispatchDeferrals.WithLabelValues(string(comp.Infra)).Inc()
	s.publish(DeferEvent{RunID: r.id, Component: comp.ID, CrewID: crew.ID, Blockers: blockers, Reason: reason})
	s.log.Debugw("dispatch deferred", map[string]any{
		"run": r.id, "component": comp.ID, "blockers": blockers, "reason": reason,
	})
}

func (s *Scheduler) publish(e eventbus.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

// validate checks the request against the catalog and the network.
func (s *Scheduler) validate(req Request) error {
	disrupted := make(map[string]bool, len(req.Disruptions))
	for _, d := range req.Disruptions {
		if d.FailPct < 0 || d.FailPct > 100 {
			return fmt.Errorf("recovery: %s has failure percentage %v outside [0,100]", d.Component, d.FailPct)
		}
		disrupted[d.Component] = true
	}
	seen := make(map[string]bool, len(req.RepairOrder))
	needCrews := make(map[model.InfraType]bool)
	for _, id := range req.RepairOrder {
		if seen[id] {
			return fmt.Errorf("recovery: repair order lists %s twice", id)
		}
		seen[id] = true
		if !disrupted[id] {
			return fmt.Errorf("recovery: repair order names %s which is not disrupted", id)
		}
		details, err := model.ParseComponentID(s.catalog, id)
		if err != nil {
			return err
		}
		needCrews[details.Infra] = true
	}
	for _, infra := range model.Infras {
		if needCrews[infra] && len(req.CrewLocations[infra]) == 0 {
			return fmt.Errorf("%w for %s: repair order needs them", crews.ErrNoCrews, infra)
		}
		for _, loc := range req.CrewLocations[infra] {
			if !s.net.HasNode(loc) {
				return fmt.Errorf("recovery: crew location %s: %w", loc, transpo.ErrUnknownNode)
			}
		}
	}
	return nil
}

func firstDisruption(r *run, repairOrder []string, infra model.InfraType) (int64, bool) {
	var t int64
	found := false
	for _, id := range repairOrder {
		c, err := r.reg.Component(id)
		if err != nil || c.Infra != infra {
			continue
		}
		if !found || c.DisruptionTime < t {
			t = c.DisruptionTime
			found = true
		}
	}
	return t, found
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
