package recovery

import (
	"errors"
	"testing"

	"github.com/crisisworks/lifeline/core/access"
	"github.com/crisisworks/lifeline/core/eventtable"
	"github.com/crisisworks/lifeline/core/model"
	"github.com/crisisworks/lifeline/core/transpo"
	"github.com/crisisworks/lifeline/infra/logger"
	"github.com/crisisworks/lifeline/internal/eventbus"
)

// corridor is a three-junction road: J1 -(T_L1)- J2 -(T_L2)- J3, five
// minutes per hop, links in both directions.
func corridorNetwork(t *testing.T) *transpo.Network {
	t.Helper()
	nodes := []transpo.Node{
		{ID: "T_J1", X: 0, Y: 0},
		{ID: "T_J2", X: 100, Y: 0},
		{ID: "T_J3", X: 200, Y: 0},
	}
	links := []transpo.Link{
		{ID: "T_L1", From: "T_J1", To: "T_J2", FreeFlowMinutes: 5, LengthM: 100, Capacity: 1000},
		{ID: "T_L2", From: "T_J2", To: "T_J3", FreeFlowMinutes: 5, LengthM: 100, Capacity: 1000},
		{ID: "T_L3", From: "T_J2", To: "T_J1", FreeFlowMinutes: 5, LengthM: 100, Capacity: 1000},
		{ID: "T_L4", From: "T_J3", To: "T_J2", FreeFlowMinutes: 5, LengthM: 100, Capacity: 1000},
	}
	net, err := transpo.NewNetwork(nodes, links)
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	return net
}

func testConfig(prepMinutes float64) Config {
	return Config{
		SimStep:              60,
		PrepMinutes:          &prepMinutes,
		RestoreBufferSeconds: 240,
		Pipes:                eventtable.IsolationPolicy{Mode: eventtable.IsolationRepair},
		Lines:                eventtable.IsolationPolicy{Mode: eventtable.IsolationRepair},
	}
}

func newScheduler(t *testing.T, cfg Config, connections map[string][]access.Coord) *Scheduler {
	t.Helper()
	net := corridorNetwork(t)
	ix, err := access.Build(connections, net.Nodes())
	if err != nil {
		t.Fatalf("access index: %v", err)
	}
	s, err := New(cfg, nil, net, ix, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	return s
}

func rowFor(t *testing.T, rows []model.SummaryRow, id string) model.SummaryRow {
	t.Helper()
	for _, r := range rows {
		if r.Component == id {
			return r
		}
	}
	t.Fatalf("no summary row for %s", id)
	return model.SummaryRow{}
}

func TestRepairStartClampedAfterDisruption(t *testing.T) {
	// Crew already at the access node with no preparation overhead: the
	// computed start would coincide with the disruption, so it is pushed
	// two steps forward.
	s := newScheduler(t, testConfig(0), map[string][]access.Coord{
		"W_PMA1": {{X: 0, Y: 0}},
	})
	res, err := s.ScheduleRecovery(Request{
		Disruptions:   []model.Disruption{{Time: 6000, Component: "W_PMA1", FailPct: 50}},
		RepairOrder:   []string{"W_PMA1"},
		CrewLocations: map[model.InfraType][]string{model.Water: {"T_J1"}},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	row := rowFor(t, res.Summary, "W_PMA1")
	if row.RepairStart != 6000+2*60 {
		t.Fatalf("repair start %d, want %d", row.RepairStart, 6000+2*60)
	}
	// Main pipe: 12h base at 50% damage is 21600s.
	if row.FunctionalStart != 27720 {
		t.Fatalf("functional start %d, want 27720", row.FunctionalStart)
	}
}

func TestPowerRepairWaitsForTransportLink(t *testing.T) {
	// P_L1 is reachable only through T_L2, which is itself disrupted. The
	// power crew must depart after the link repair completes.
	s := newScheduler(t, testConfig(10), map[string][]access.Coord{
		"P_L1": {{X: 200, Y: 0}},
	})
	res, err := s.ScheduleRecovery(Request{
		Disruptions: []model.Disruption{
			{Time: 1000, Component: "T_L2", FailPct: 50},
			{Time: 1000, Component: "P_L1", FailPct: 50},
		},
		RepairOrder: []string{"T_L2", "P_L1"},
		CrewLocations: map[model.InfraType][]string{
			model.Transpo: {"T_J1"},
			model.Power:   {"T_J1"},
		},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	link := rowFor(t, res.Summary, "T_L2")
	line := rowFor(t, res.Summary, "P_L1")
	if link.RepairStart != 1920 || link.FunctionalStart != 45120 {
		t.Fatalf("link summary %+v", link)
	}
	if line.RepairStart < link.FunctionalStart {
		t.Fatalf("power repair started at %d before link restored at %d", line.RepairStart, link.FunctionalStart)
	}
	// Departure 45100 plus 10 prep and 10 travel minutes.
	if line.RepairStart != 46320 {
		t.Fatalf("power repair start %d, want 46320", line.RepairStart)
	}
}

func TestSingleCrewRepairsSequentially(t *testing.T) {
	s := newScheduler(t, testConfig(10), map[string][]access.Coord{
		"W_PMA1": {{X: 0, Y: 0}},
		"W_PMA2": {{X: 100, Y: 0}},
	})
	res, err := s.ScheduleRecovery(Request{
		Disruptions: []model.Disruption{
			{Time: 1000, Component: "W_PMA1", FailPct: 50},
			{Time: 1000, Component: "W_PMA2", FailPct: 50},
		},
		RepairOrder:   []string{"W_PMA1", "W_PMA2"},
		CrewLocations: map[model.InfraType][]string{model.Water: {"T_J1"}},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	first := rowFor(t, res.Summary, "W_PMA1")
	second := rowFor(t, res.Summary, "W_PMA2")
	if second.RepairStart < first.FunctionalStart {
		t.Fatalf("second repair at %d overlaps first ending at %d", second.RepairStart, first.FunctionalStart)
	}
	// Crew free at 23200, five minutes travel plus prep.
	if second.RepairStart != 24120 {
		t.Fatalf("second repair start %d, want 24120", second.RepairStart)
	}
	stats := res.Stats[model.Water]
	if stats.Repaired != 2 {
		t.Fatalf("water repairs %d, want 2", stats.Repaired)
	}
	if stats.TravelMinutes != 25 {
		t.Fatalf("water travel minutes %v, want 25", stats.TravelMinutes)
	}
}

// detourNetwork adds a slow bypass around the corridor:
// J1 -(T_L1 5m)- J2 -(T_L2 5m)- J3, with J1 -(T_L5 30m)- J4 -(T_L6 30m)- J3.
func detourNetwork(t *testing.T) *transpo.Network {
	t.Helper()
	nodes := []transpo.Node{
		{ID: "T_J1", X: 0, Y: 0},
		{ID: "T_J2", X: 100, Y: 0},
		{ID: "T_J3", X: 200, Y: 0},
		{ID: "T_J4", X: 100, Y: 100},
	}
	links := []transpo.Link{
		{ID: "T_L1", From: "T_J1", To: "T_J2", FreeFlowMinutes: 5, LengthM: 100, Capacity: 1000},
		{ID: "T_L2", From: "T_J2", To: "T_J3", FreeFlowMinutes: 5, LengthM: 100, Capacity: 1000},
		{ID: "T_L5", From: "T_J1", To: "T_J4", FreeFlowMinutes: 30, LengthM: 600, Capacity: 500},
		{ID: "T_L6", From: "T_J4", To: "T_J3", FreeFlowMinutes: 30, LengthM: 600, Capacity: 500},
	}
	net, err := transpo.NewNetwork(nodes, links)
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	return net
}

func TestTwoCrewsCompleteOutOfOrder(t *testing.T) {
	// Two transportation crews are dispatched in repair-order sequence but
	// finish in the reverse order: T_L1 is destroyed (24h) while T_L2 has a
	// one-hour override. A water dispatch planned between the completions
	// must still see T_L1 priced out and take the detour instead of waiting
	// a day for a corridor that is not actually needed.
	net := detourNetwork(t)
	ix, err := access.Build(map[string][]access.Coord{
		"W_PMA1": {{X: 0, Y: 0}},
		"W_PMA2": {{X: 200, Y: 0}},
	}, net.Nodes())
	if err != nil {
		t.Fatalf("access index: %v", err)
	}
	s, err := New(testConfig(0), nil, net, ix, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	res, err := s.ScheduleRecovery(Request{
		Disruptions: []model.Disruption{
			{Time: 1000, Component: "T_L1", FailPct: 100},
			{Time: 1000, Component: "T_L2", FailPct: 50, RecoveryTime: 3600},
			{Time: 1000, Component: "W_PMA1", FailPct: 50, RecoveryTime: 4000},
			{Time: 1000, Component: "W_PMA2", FailPct: 50},
		},
		RepairOrder: []string{"T_L1", "T_L2", "W_PMA1", "W_PMA2"},
		CrewLocations: map[model.InfraType][]string{
			model.Transpo: {"T_J1", "T_J3"},
			model.Water:   {"T_J1"},
		},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	first := rowFor(t, res.Summary, "T_L1")
	second := rowFor(t, res.Summary, "T_L2")
	if first.FunctionalStart != 87480 || second.FunctionalStart != 4680 {
		t.Fatalf("link completions %d and %d, want 87480 and 4680", first.FunctionalStart, second.FunctionalStart)
	}
	if second.FunctionalStart >= first.FunctionalStart {
		t.Fatalf("completions did not invert: %d vs %d", second.FunctionalStart, first.FunctionalStart)
	}

	// The water crew frees up at 5080, after T_L2 is back but long before
	// T_L1: detour 60 minutes, repair starts at 8680 and quantizes to 8640.
	// Waiting on T_L1 instead would push the start past 87480.
	pipe := rowFor(t, res.Summary, "W_PMA2")
	if pipe.RepairStart != 8640 {
		t.Fatalf("W_PMA2 repair start %d, want 8640", pipe.RepairStart)
	}
	if res.Stats[model.Transpo].Repaired != 2 {
		t.Fatalf("transportation repairs %d, want 2", res.Stats[model.Transpo].Repaired)
	}
}

func TestRecoveryTimeOverride(t *testing.T) {
	s := newScheduler(t, testConfig(0), map[string][]access.Coord{
		"W_PMA1": {{X: 0, Y: 0}},
	})
	res, err := s.ScheduleRecovery(Request{
		Disruptions: []model.Disruption{
			{Time: 960, Component: "W_PMA1", FailPct: 50, RecoveryTime: 6000},
		},
		RepairOrder:   []string{"W_PMA1"},
		CrewLocations: map[model.InfraType][]string{model.Water: {"T_J1"}},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	row := rowFor(t, res.Summary, "W_PMA1")
	if got := row.FunctionalStart - row.RepairStart; got != 6000 {
		t.Fatalf("repair window %d, want override 6000", got)
	}
}

func TestSchedulingDeadlock(t *testing.T) {
	// The only road to P_L1 runs over T_L2, which is disrupted but absent
	// from the repair order. No scan can ever dispatch.
	s := newScheduler(t, testConfig(10), map[string][]access.Coord{
		"P_L1": {{X: 200, Y: 0}},
	})
	_, err := s.ScheduleRecovery(Request{
		Disruptions: []model.Disruption{
			{Time: 1000, Component: "T_L2", FailPct: 50},
			{Time: 1000, Component: "P_L1", FailPct: 50},
		},
		RepairOrder:   []string{"P_L1"},
		CrewLocations: map[model.InfraType][]string{model.Power: {"T_J1"}},
	})
	if !errors.Is(err, ErrSchedulingDeadlock) {
		t.Fatalf("expected scheduling deadlock, got %v", err)
	}
}

func TestExactlyOneRestoredPerComponent(t *testing.T) {
	s := newScheduler(t, testConfig(10), map[string][]access.Coord{
		"P_L1": {{X: 200, Y: 0}},
	})
	res, err := s.ScheduleRecovery(Request{
		Disruptions: []model.Disruption{
			{Time: 1000, Component: "T_L2", FailPct: 50},
			{Time: 1000, Component: "P_L1", FailPct: 50},
		},
		RepairOrder: []string{"T_L2", "P_L1"},
		CrewLocations: map[model.InfraType][]string{
			model.Transpo: {"T_J1"},
			model.Power:   {"T_J1"},
		},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	restored := make(map[string]int)
	for i, r := range res.Events {
		if r.State == model.StateRestored {
			restored[r.Component]++
		}
		if r.Time%(2*60) != 0 {
			t.Fatalf("record %+v not quantized", r)
		}
		if i > 0 && r.Time < res.Events[i-1].Time {
			t.Fatalf("events not sorted at index %d", i)
		}
	}
	for _, id := range []string{"T_L2", "P_L1"} {
		if restored[id] != 1 {
			t.Fatalf("%s restored %d times", id, restored[id])
		}
	}
}

func TestUnscheduledDisruptionsReported(t *testing.T) {
	s := newScheduler(t, testConfig(0), map[string][]access.Coord{
		"W_PMA1": {{X: 0, Y: 0}},
	})
	res, err := s.ScheduleRecovery(Request{
		Disruptions: []model.Disruption{
			{Time: 6000, Component: "W_PMA1", FailPct: 50},
			{Time: 6000, Component: "W_T9", FailPct: 30},
		},
		RepairOrder:   []string{"W_PMA1"},
		CrewLocations: map[model.InfraType][]string{model.Water: {"T_J1"}},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(res.Unscheduled) != 1 || res.Unscheduled[0] != "W_T9" {
		t.Fatalf("unscheduled %v", res.Unscheduled)
	}
}

func TestDispatchEventsPublished(t *testing.T) {
	net := corridorNetwork(t)
	ix, err := access.Build(map[string][]access.Coord{"W_PMA1": {{X: 0, Y: 0}}}, net.Nodes())
	if err != nil {
		t.Fatalf("access index: %v", err)
	}
	bus := eventbus.New()
	defer bus.Close()
	sub := bus.SubscribeBuffered(16)

	s, err := New(testConfig(0), nil, net, ix, bus, logger.NopLogger{})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	if _, err := s.ScheduleRecovery(Request{
		Disruptions:   []model.Disruption{{Time: 6000, Component: "W_PMA1", FailPct: 50}},
		RepairOrder:   []string{"W_PMA1"},
		CrewLocations: map[model.InfraType][]string{model.Water: {"T_J1"}},
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	select {
	case e := <-sub:
		d, ok := e.(DispatchEvent)
		if !ok {
			t.Fatalf("unexpected event %T", e)
		}
		if d.Component != "W_PMA1" || d.CrewID != 1 {
			t.Fatalf("dispatch event %+v", d)
		}
	default:
		t.Fatalf("no dispatch event published")
	}
}

func TestRequestValidation(t *testing.T) {
	s := newScheduler(t, testConfig(10), map[string][]access.Coord{
		"W_PMA1": {{X: 0, Y: 0}},
	})
	disruptions := []model.Disruption{{Time: 1000, Component: "W_PMA1", FailPct: 50}}

	cases := []struct {
		name string
		req  Request
	}{
		{"duplicate order entry", Request{
			Disruptions:   disruptions,
			RepairOrder:   []string{"W_PMA1", "W_PMA1"},
			CrewLocations: map[model.InfraType][]string{model.Water: {"T_J1"}},
		}},
		{"order names undisrupted component", Request{
			Disruptions:   disruptions,
			RepairOrder:   []string{"W_PMA2"},
			CrewLocations: map[model.InfraType][]string{model.Water: {"T_J1"}},
		}},
		{"no crews for needed infrastructure", Request{
			Disruptions: disruptions,
			RepairOrder: []string{"W_PMA1"},
		}},
		{"crew location off the network", Request{
			Disruptions:   disruptions,
			RepairOrder:   []string{"W_PMA1"},
			CrewLocations: map[model.InfraType][]string{model.Water: {"T_J9"}},
		}},
		{"failure percentage out of range", Request{
			Disruptions:   []model.Disruption{{Time: 1000, Component: "W_PMA1", FailPct: 120}},
			RepairOrder:   []string{"W_PMA1"},
			CrewLocations: map[model.InfraType][]string{model.Water: {"T_J1"}},
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := s.ScheduleRecovery(c.req); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
